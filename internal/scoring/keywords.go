// Package scoring computes lexical overlap between evidence and promise text
// and combines it with the oracle verdict into a proposal decision.
package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"promisetracker/internal/models"
	pstrings "promisetracker/pkg/platform/strings"
)

const minKeywordRunes = 3

var stopWords = toSet(
	"about", "above", "after", "again", "against", "all", "also", "and", "any", "are",
	"because", "been", "before", "being", "below", "between", "both", "but", "can",
	"could", "did", "does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "her", "here", "hers", "him", "his",
	"how", "into", "its", "itself", "just", "more", "most", "new", "nor", "not", "now",
	"off", "once", "only", "other", "our", "ours", "out", "over", "own", "same", "she",
	"should", "some", "such", "than", "that", "the", "their", "theirs", "them", "then",
	"there", "these", "they", "this", "those", "through", "too", "under", "until", "upon",
	"very", "was", "were", "what", "when", "where", "which", "while", "who", "whom",
	"why", "will", "with", "would", "you", "your", "yours",
	// boilerplate common to every government notice
	"government", "canada", "canadian", "canadians", "federal", "minister", "ministry",
	"department", "act", "bill", "section", "regulations", "regulation", "order",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Keywords returns the normalized keyword set of text: lower-cased letter and
// digit runs of at least three runes, minus stop words.
func Keywords(text string) models.StringSet {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var kept []string
	for _, tok := range pstrings.DedupeAndTrimLower(tokens) {
		if utf8.RuneCountInString(tok) < minKeywordRunes {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return models.NewStringSet(kept...)
}

// Overlap compares two keyword sets.
func Overlap(a, b models.StringSet) models.KeywordOverlap {
	common := make(models.StringSet, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			common = append(common, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - len(common)
	var jaccard float64
	if union > 0 {
		jaccard = float64(len(common)) / float64(union)
	}
	return models.KeywordOverlap{
		Jaccard:        jaccard,
		CommonCount:    len(common),
		CommonKeywords: common,
	}
}
