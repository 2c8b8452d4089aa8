package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "promisetracker/pkg/domain-errors"
)

func TestPotentialLink_Resolve(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	overlap := KeywordOverlap{Jaccard: 0.5, CommonCount: 1, CommonKeywords: NewStringSet("housing")}

	t.Run("confirm stamps review fields once", func(t *testing.T) {
		link := NewPotentialLink("P1", "E1", overlap, LikelihoodHigh, "strong match", now)
		require.NoError(t, link.CanResolve())
		link.ApplyConfirm(now.Add(time.Hour), "looks right")

		assert.Equal(t, LinkStatusConfirmed, link.LinkStatus)
		require.NotNil(t, link.ReviewedAt)
		assert.Equal(t, now.Add(time.Hour), *link.ReviewedAt)

		err := link.CanResolve()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	t.Run("scores survive resolution", func(t *testing.T) {
		link := NewPotentialLink("P1", "E1", overlap, LikelihoodLow, "", now)
		link.ApplyReject(now, "unrelated")
		assert.Equal(t, overlap, link.KeywordOverlap)
		assert.Equal(t, LikelihoodLow, link.LLMLikelihood)
		assert.Equal(t, "unrelated", link.ReviewerNotes)
	})

	t.Run("clone does not share review time", func(t *testing.T) {
		link := NewPotentialLink("P1", "E1", overlap, LikelihoodLow, "", now)
		link.ApplyReject(now, "")
		c := link.Clone()
		*c.ReviewedAt = now.Add(time.Minute)
		assert.Equal(t, now, *link.ReviewedAt)
	})
}

func TestStringSet(t *testing.T) {
	s := NewStringSet("b", " a ", "b", "")
	assert.Equal(t, StringSet{"a", "b"}, s)

	s2, added := s.Add("c")
	assert.True(t, added)
	assert.Equal(t, StringSet{"a", "b", "c"}, s2)

	s3, added := s2.Add("a")
	assert.False(t, added)
	assert.Equal(t, s2, s3)
	assert.True(t, s3.Contains("c"))
	assert.False(t, s3.Contains("d"))
}

func TestRawDocument_Validate(t *testing.T) {
	valid := RawDocument{
		ID:          "r1",
		FeedType:    FeedCanadaNews,
		Title:       "Housing accelerator announced",
		PublishedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		SourceURL:   "https://www.canada.ca/en/news/1",
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "canada_news:r1", valid.SourceKey())

	cases := map[string]func(r *RawDocument){
		"missing title":  func(r *RawDocument) { r.Title = " " },
		"zero date":      func(r *RawDocument) { r.PublishedAt = time.Time{} },
		"unknown feed":   func(r *RawDocument) { r.FeedType = "rss" },
		"relative url":   func(r *RawDocument) { r.SourceURL = "/news/1" },
		"unparsable url": func(r *RawDocument) { r.SourceURL = "http://[::1" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestWindowAndCandidateQuery(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	w := Window{Start: day(2), End: day(5)}
	assert.False(t, w.Contains(day(1)))
	assert.True(t, w.Contains(day(2)))
	assert.False(t, w.Contains(day(5)))
	assert.True(t, Window{}.Contains(day(30)))

	dated := &IngestRecord{PublishedAt: day(1)}
	assert.False(t, dated.InWindow(w))
	assert.True(t, (&IngestRecord{}).InWindow(w), "undated rows match every window")

	p := &Promise{Status: PromiseStatusActive, ParliamentSession: "44", DateIssued: day(10)}
	assert.True(t, CandidateQuery{Session: "44"}.Matches(p))
	assert.False(t, CandidateQuery{Session: "45"}.Matches(p))
	assert.False(t, CandidateQuery{Around: day(1), Radius: 48 * time.Hour}.Matches(p))
	p.Status = PromiseStatusDeleted
	assert.False(t, CandidateQuery{}.Matches(p))
}
