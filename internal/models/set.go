package models

import (
	"slices"

	pstrings "promisetracker/pkg/platform/strings"
)

// StringSet is a sorted, duplicate-free list of strings. It is stored as a
// plain slice so it round-trips through JSON and Postgres text[] unchanged.
type StringSet []string

// NewStringSet builds a set from values, trimming and dropping blanks.
func NewStringSet(values ...string) StringSet {
	return StringSet(pstrings.SortedSet(values))
}

func (s StringSet) Contains(v string) bool {
	_, found := slices.BinarySearch(s, v)
	return found
}

// Add returns the union of s and v and whether v was new.
func (s StringSet) Add(v string) (StringSet, bool) {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s, false
	}
	out := make(StringSet, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	out = append(out, s[i:]...)
	return out, true
}

func (s StringSet) Clone() StringSet {
	if s == nil {
		return StringSet{}
	}
	return slices.Clone(s)
}

func (s StringSet) Len() int { return len(s) }
