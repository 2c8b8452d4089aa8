package materializer

import (
	"fmt"
	"regexp"

	"promisetracker/internal/models"
	"promisetracker/internal/scoring"
)

// Filter decides whether a valid raw document is worth turning into evidence.
// A false result carries the reason recorded on the ingest row.
type Filter interface {
	Relevant(raw *models.RawDocument) (bool, string)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(raw *models.RawDocument) (bool, string)

func (f FilterFunc) Relevant(raw *models.RawDocument) (bool, string) {
	return f(raw)
}

// KeywordFilter skips documents with too few keywords or a title matching
// one of the skip patterns.
type KeywordFilter struct {
	MinKeywords int
	skip        []skipPattern
}

type skipPattern struct {
	source string
	re     *regexp.Regexp
}

// NewKeywordFilter compiles the skip patterns case-insensitively.
func NewKeywordFilter(minKeywords int, skipTitlePatterns []string) (*KeywordFilter, error) {
	f := &KeywordFilter{MinKeywords: minKeywords}
	for _, p := range skipTitlePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("skip title pattern %q: %w", p, err)
		}
		f.skip = append(f.skip, skipPattern{source: p, re: re})
	}
	return f, nil
}

func (f *KeywordFilter) Relevant(raw *models.RawDocument) (bool, string) {
	for _, p := range f.skip {
		if p.re.MatchString(raw.Title) {
			return false, "title matches skip pattern " + p.source
		}
	}
	if n := scoring.Keywords(raw.Title + " " + raw.Body).Len(); n < f.MinKeywords {
		return false, fmt.Sprintf("%d keywords, need %d", n, f.MinKeywords)
	}
	return true, ""
}
