package testutil

import "testing"

// Given, When and Then name subtests after the step they describe, so a
// failing scenario reads as "Given .../When .../Then ..." in go test output.
// Steps nest: put a Then inside the When it checks.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", desc, fn)
}

// A failed setup step stops the scenario; later steps would only cascade.
func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(keyword+" "+desc, fn) && keyword == "Given" {
		t.FailNow()
	}
}
