package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fail(b *Breaker, n int) (opened bool) {
	for range n {
		_, change := b.RecordFailure()
		opened = opened || change.Opened
	}
	return opened
}

func TestBreakerDefaults(t *testing.T) {
	b := New("oracle")
	assert.Equal(t, "oracle", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
	assert.False(t, fail(b, 4), "default threshold is five")
	assert.True(t, fail(b, 1))
}

func TestBreakerOpening(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		sequence  string // f = failure, s = success
		open      bool
	}{
		{name: "below threshold", threshold: 3, sequence: "ff", open: false},
		{name: "at threshold", threshold: 3, sequence: "fff", open: true},
		{name: "success resets the run", threshold: 3, sequence: "ffsff", open: false},
		{name: "run after reset", threshold: 3, sequence: "ffsfff", open: true},
		{name: "non-positive threshold keeps default", threshold: 0, sequence: "ffff", open: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("oracle", WithFailureThreshold(tt.threshold))
			for _, c := range tt.sequence {
				if c == 'f' {
					b.RecordFailure()
				} else {
					b.RecordSuccess()
				}
			}
			assert.Equal(t, tt.open, b.IsOpen())
		})
	}
}

func TestBreakerRecovery(t *testing.T) {
	b := New("oracle", WithFailureThreshold(1), WithSuccessThreshold(2))
	require.True(t, fail(b, 1))

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback, "open breaker keeps the fallback")
	assert.False(t, change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	b.RecordFailure()
	b.RecordSuccess()
	assert.True(t, b.IsOpen(), "a failure restarts the success run")

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.Equal(t, "closed", b.State().String())
}

func TestBreakerReset(t *testing.T) {
	b := New("oracle", WithFailureThreshold(2))
	fail(b, 2)
	require.Equal(t, "open", b.State().String())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.False(t, fail(b, 1), "counters cleared")
}

func TestBreakerCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("oracle", WithFailureThreshold(2), WithCooldown(time.Minute))
	b.now = func() time.Time { return now }

	fail(b, 2)
	assert.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "probe allowed once cooldown passes")

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed probe restarts the cooldown")
}
