package materializer_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"promisetracker/internal/materializer"
	"promisetracker/internal/models"
	"promisetracker/internal/store/memory"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/requestcontext"
)

type MaterializerSuite struct {
	suite.Suite
	store *memory.Store
	m     *materializer.Materializer
	ctx   context.Context
	now   time.Time
}

func TestMaterializerSuite(t *testing.T) {
	suite.Run(t, new(MaterializerSuite))
}

func (s *MaterializerSuite) SetupTest() {
	s.store = memory.New()
	s.now = time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	filter, err := materializer.NewKeywordFilter(3, []string{`^notice of (meeting|vacancy)`})
	s.Require().NoError(err)
	s.m = materializer.New(s.store, s.store,
		materializer.WithFilter(filter),
		materializer.WithSessions([]materializer.Session{
			{Name: "44-1", Start: time.Date(2021, 11, 22, 0, 0, 0, 0, time.UTC)},
			{Name: "45-1", Start: time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC)},
		}),
	)
}

func (s *MaterializerSuite) ingest(raw *models.RawDocument) {
	created, err := s.store.SaveRaw(s.ctx, raw, models.NewIngestRecord(raw, s.now))
	s.Require().NoError(err)
	s.Require().True(created)
}

func (s *MaterializerSuite) raw(rawID string) *models.RawDocument {
	return &models.RawDocument{
		ID:          id.RawID(rawID),
		FeedType:    models.FeedCanadaGazetteP2,
		Title:       "Regulations Amending the Housing Accelerator Fund",
		Body:        "The  regulations   expand\n\nfunding for municipal housing construction.",
		PublishedAt: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		SourceURL:   "https://gazette.gc.ca/rp-pr/p2/2024/sor-2024-41.html",
	}
}

func (s *MaterializerSuite) TestMaterialize_CreatesEvidence() {
	raw := s.raw("sor-2024-41")
	s.ingest(raw)

	out, err := s.m.Materialize(s.ctx, raw.ID)
	s.Require().NoError(err)
	s.True(out.Created)
	s.Equal(models.IngestStatusEvidenceCreated, out.Status)
	s.Equal(id.EvidenceIDForSource("canada_gazette_p2:sor-2024-41"), out.EvidenceID)

	item, err := s.store.FindEvidence(s.ctx, out.EvidenceID)
	s.Require().NoError(err)
	s.Equal(models.EvidenceStatusPendingLinkGeneration, item.ProcessingStatus)
	s.Equal(models.SourceGazetteRegulation, item.SourceType)
	s.Equal("canada_gazette_p2:sor-2024-41", item.SourceKey)
	s.Equal("The regulations expand funding for municipal housing construction.", item.Summary)
	s.Equal("44-1", item.ParliamentSession)
	s.Equal(raw.PublishedAt, item.EvidenceDate)
	s.Empty(item.PromiseIDs)

	rec, err := s.store.FindIngest(s.ctx, raw.ID)
	s.Require().NoError(err)
	s.Equal(models.IngestStatusEvidenceCreated, rec.Status)
	s.Equal(out.EvidenceID, rec.EvidenceID)
	s.Equal(1, rec.Attempts)
}

func (s *MaterializerSuite) TestMaterialize_Idempotent() {
	raw := s.raw("sor-2024-42")
	s.ingest(raw)

	first, err := s.m.Materialize(s.ctx, raw.ID)
	s.Require().NoError(err)
	second, err := s.m.Materialize(s.ctx, raw.ID)
	s.Require().NoError(err)

	s.False(second.Created)
	s.Equal(first.EvidenceID, second.EvidenceID)
	items, err := s.store.ListEvidence(s.ctx)
	s.Require().NoError(err)
	s.Len(items, 1)
}

func (s *MaterializerSuite) TestMaterialize_ExistingSourceKey() {
	raw := s.raw("sor-2024-43")
	s.ingest(raw)
	existing := &models.EvidenceItem{
		ID:               id.EvidenceIDForSource(raw.SourceKey()),
		SourceKey:        raw.SourceKey(),
		SourceType:       models.SourceGazetteRegulation,
		Title:            "imported earlier",
		ProcessingStatus: models.EvidenceStatusPendingReview,
		CreatedAt:        s.now,
		UpdatedAt:        s.now,
	}
	s.Require().NoError(s.store.CreateEvidence(s.ctx, existing))

	out, err := s.m.Materialize(s.ctx, raw.ID)
	s.Require().NoError(err)
	s.False(out.Created)
	s.Equal(existing.ID, out.EvidenceID)

	item, err := s.store.FindEvidence(s.ctx, existing.ID)
	s.Require().NoError(err)
	s.Equal("imported earlier", item.Title)
	s.Equal(models.EvidenceStatusPendingReview, item.ProcessingStatus)
}

func (s *MaterializerSuite) TestMaterialize_Malformed() {
	tests := []struct {
		name   string
		mutate func(r *models.RawDocument)
		reason string
	}{
		{"missing title", func(r *models.RawDocument) { r.Title = "  " }, "title is required"},
		{"zero published date", func(r *models.RawDocument) { r.PublishedAt = time.Time{} }, "published date is required"},
		{"unknown feed", func(r *models.RawDocument) { r.FeedType = "parl_hansard" }, "unknown feed type"},
		{"relative url", func(r *models.RawDocument) { r.SourceURL = "/rp-pr/p2/x.html" }, "absolute url"},
	}
	for i, tt := range tests {
		s.Run(tt.name, func() {
			raw := s.raw("bad-" + string(rune('a'+i)))
			tt.mutate(raw)
			s.ingest(raw)

			out, err := s.m.Materialize(s.ctx, raw.ID)
			s.Require().NoError(err)
			s.Equal(models.IngestStatusErrorMaterialization, out.Status)
			s.Contains(out.Reason, tt.reason)

			out, err = s.m.Materialize(s.ctx, raw.ID)
			s.Require().NoError(err, "errored rows are retried")
			s.Equal(models.IngestStatusErrorMaterialization, out.Status)

			rec, err := s.store.FindIngest(s.ctx, raw.ID)
			s.Require().NoError(err)
			s.Equal(2, rec.Attempts)
			s.Contains(rec.LastError, tt.reason)
		})
	}

	items, err := s.store.ListEvidence(s.ctx)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *MaterializerSuite) TestMaterialize_LowRelevance() {
	s.Run("too few keywords", func() {
		raw := s.raw("thin")
		raw.Title = "Erratum"
		raw.Body = ""
		s.ingest(raw)

		out, err := s.m.Materialize(s.ctx, raw.ID)
		s.Require().NoError(err)
		s.Equal(models.IngestStatusSkippedLowRelevance, out.Status)
		s.Contains(out.Reason, "need 3")
	})

	s.Run("skip pattern", func() {
		raw := s.raw("meeting")
		raw.Title = "Notice of Meeting: Standing Committee on Finance"
		s.ingest(raw)

		out, err := s.m.Materialize(s.ctx, raw.ID)
		s.Require().NoError(err)
		s.Equal(models.IngestStatusSkippedLowRelevance, out.Status)
		s.True(strings.HasPrefix(out.Reason, "title matches"))
	})
}

func (s *MaterializerSuite) TestMaterialize_SummaryTruncation() {
	raw := s.raw("long")
	raw.Body = strings.Repeat("logement é ", 300)
	s.ingest(raw)

	out, err := s.m.Materialize(s.ctx, raw.ID)
	s.Require().NoError(err)
	item, err := s.store.FindEvidence(s.ctx, out.EvidenceID)
	s.Require().NoError(err)
	s.Equal(1000, len([]rune(item.Summary)))
}

func (s *MaterializerSuite) TestMaterialize_UnknownRaw() {
	_, err := s.m.Materialize(s.ctx, "nope")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MaterializerSuite) TestMaterialize_Concurrent() {
	raw := s.raw("race")
	s.ingest(raw)

	var wg sync.WaitGroup
	outs := make([]materializer.Outcome, 8)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := s.m.Materialize(s.ctx, raw.ID)
			s.NoError(err)
			outs[i] = out
		}(i)
	}
	wg.Wait()

	created := 0
	for _, out := range outs {
		s.Equal(models.IngestStatusEvidenceCreated, out.Status)
		if out.Created {
			created++
		}
	}
	s.Equal(1, created)
	items, err := s.store.ListEvidence(s.ctx)
	s.Require().NoError(err)
	s.Len(items, 1)
}
