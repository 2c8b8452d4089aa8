package admin_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"promisetracker/internal/admin"
	"promisetracker/internal/audit"
	"promisetracker/internal/batch"
	"promisetracker/internal/models"
	"promisetracker/internal/store/memory"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/requestcontext"
	"promisetracker/pkg/testutil"
)

type batchFunc func(ctx context.Context, req batch.Request) (batch.Tally, error)

func (f batchFunc) RunBatch(ctx context.Context, req batch.Request) (batch.Tally, error) {
	return f(ctx, req)
}

type AdminSuite struct {
	suite.Suite
	store  *memory.Store
	router http.Handler
	now    time.Time
	ran    []batch.Request
}

func TestAdminSuite(t *testing.T) {
	suite.Run(t, new(AdminSuite))
}

func (s *AdminSuite) SetupTest() {
	s.store = memory.New()
	s.now = time.Date(2024, 8, 20, 15, 0, 0, 0, time.UTC)
	s.ran = nil
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := admin.New(s.store, s.store,
		admin.WithLogger(logger),
		admin.WithAuditEmitter(audit.NewEmitter(s.store, logger)),
		admin.WithBatchRunner(batchFunc(func(_ context.Context, req batch.Request) (batch.Tally, error) {
			s.ran = append(s.ran, req)
			return batch.Tally{Attempted: 2, Created: 2}, nil
		})),
	)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithTime(req.Context(), s.now)
			next.ServeHTTP(w, req.WithContext(requestcontext.WithActor(ctx, "curator-7")))
		})
	})
	admin.NewHandler(svc, logger).Register(r)
	s.router = r
}

func (s *AdminSuite) seed() (*models.Promise, *models.EvidenceItem) {
	ctx := context.Background()
	p := &models.Promise{
		ID:                "p1",
		Text:              "Build 1.4 million homes",
		Department:        "Housing",
		Status:            models.PromiseStatusActive,
		LinkedEvidenceIDs: models.StringSet{"e-old"},
	}
	s.Require().NoError(s.store.SavePromise(ctx, p))
	e := &models.EvidenceItem{
		ID:                id.EvidenceIDForSource("canada_news:1"),
		SourceKey:         "canada_news:1",
		SourceType:        models.SourceNewsRelease,
		Title:             "Housing update",
		EvidenceDate:      time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		PromiseIDs:        models.StringSet{},
		ExtractedKeywords: models.StringSet{},
		ProcessingStatus:  models.EvidenceStatusPendingReview,
	}
	s.Require().NoError(s.store.CreateEvidence(ctx, e))
	return p, e
}

func (s *AdminSuite) events() []audit.Event {
	entries, err := s.store.ListUnpublishedOutbox(context.Background(), 100)
	s.Require().NoError(err)
	out := make([]audit.Event, 0, len(entries))
	for _, entry := range entries {
		e, err := audit.DecodeEvent(entry.Payload)
		s.Require().NoError(err)
		out = append(out, e)
	}
	return out
}

func (s *AdminSuite) TestEditPromise() {
	s.seed()
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/promises/p1",
		map[string]any{"text": " Build 1.5 million homes ", "department": "Housing"}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	resp := testutil.DecodeResponse[admin.PromiseResponse](s.T(), rr)
	s.Equal("Build 1.5 million homes", resp.Text)
	s.Equal([]string{"e-old"}, resp.LinkedEvidenceIDs)
	s.Equal(s.now, resp.UpdatedAt)

	events := s.events()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionPromiseEdited, events[0].Action)
	s.Equal([]string{"text"}, events[0].ChangedKeys)
	s.Equal("curator-7", events[0].ActorID)
}

func (s *AdminSuite) TestEditPromise_NoChangeWritesNothing() {
	s.seed()
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/promises/p1",
		map[string]any{"department": "Housing"}))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Empty(s.events())
}

func (s *AdminSuite) TestEditPromise_PipelineFieldsRejected() {
	s.seed()
	for _, body := range []map[string]any{
		{"linked_evidence_ids": []string{"e1"}},
		{"text": "ok", "processing_status": "linked"},
		{"llm_likelihood_score": "high"},
	} {
		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/promises/p1", body))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	}

	p, err := s.store.FindPromise(context.Background(), "p1")
	s.Require().NoError(err)
	s.Equal("Build 1.4 million homes", p.Text)
	s.Equal(models.StringSet{"e-old"}, p.LinkedEvidenceIDs)
}

func (s *AdminSuite) TestEditPromise_Errors() {
	s.seed()
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/promises/nope",
		map[string]any{"text": "x"}))
	testutil.AssertError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/promises/p1",
		map[string]any{"status": "archived"}))
	testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/promises/p1",
		map[string]any{"owner": "me"}))
	testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *AdminSuite) TestEditEvidence() {
	_, e := s.seed()
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/evidence/"+e.ID.String(),
		map[string]any{"title": "Housing progress update", "deleted": true}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	resp := testutil.DecodeResponse[admin.EvidenceResponse](s.T(), rr)
	s.Equal("Housing progress update", resp.Title)
	s.True(resp.Deleted)
	s.Equal("pending_review", resp.ProcessingStatus)

	events := s.events()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionEvidenceEdited, events[0].Action)
	s.Equal([]string{"title", "deleted"}, events[0].ChangedKeys)
}

func (s *AdminSuite) TestEditEvidence_Rejected() {
	_, e := s.seed()
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/evidence/"+e.ID.String(),
		map[string]any{"promise_ids": []string{"p1"}}))
	testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/admin/evidence/"+e.ID.String(),
		map[string]any{"source_url": "not a url"}))
	testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	s.Empty(s.events())
}

func (s *AdminSuite) TestCreatePromise() {
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/promises",
		map[string]any{"id": "p9", "text": "Plant two billion trees", "parliament_session": "44-1"}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	resp := testutil.DecodeResponse[admin.PromiseResponse](s.T(), rr)
	s.Equal("active", resp.Status)
	s.Empty(resp.LinkedEvidenceIDs)

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/promises",
		map[string]any{"id": "p9", "text": "again"}))
	testutil.AssertError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
}

func (s *AdminSuite) TestRunBatch() {
	rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/batches",
		map[string]any{"stage": "generate_links", "max_items": 25, "force": true, "session": "44-1"}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.DecodeResponse[admin.BatchResponse](s.T(), rr)
	s.Equal(2, resp.Tally.Created)
	s.Require().Len(s.ran, 1)
	s.Equal(batch.Request{Stage: batch.StageGenerateLinks, MaxItems: 25, Force: true, Session: "44-1"}, s.ran[0])

	rr = testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/batches",
		map[string]any{"stage": "rescore"}))
	testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	s.Len(s.ran, 1)
}
