// Package strings provides string manipulation utilities.
package strings

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  Housing ", "tax", "HOUSING"})
//	// Returns: []string{"housing", "tax"}
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := norm(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}
	return result
}

// SortedSet returns the trimmed, de-duplicated values in ascending order.
// A nil or empty input yields an empty, non-nil slice.
func SortedSet(values []string) []string {
	out := DedupeAndTrim(values)
	if out == nil {
		out = []string{}
	}
	out = slices.Clone(out)
	slices.Sort(out)
	return out
}

// CollapseSpace replaces every run of whitespace with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes cuts s to at most max runes without splitting a rune.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
