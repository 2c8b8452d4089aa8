package ingest_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promisetracker/internal/ingest"
	"promisetracker/internal/models"
	"promisetracker/internal/store/memory"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/requestcontext"
	"promisetracker/pkg/testutil"
)

var now = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func newRouter(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := ingest.NewHandler(ingest.New(store, ingest.WithLogger(logger)), logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithTime(req.Context(), now)))
		})
	})
	h.Register(r)
	return store, r
}

func rawBody() map[string]any {
	return map[string]any{
		"id":           "C-56",
		"feed_type":    " LEGISINFO_BILL_EVENT ",
		"title":        "Bill C-56 receives royal assent",
		"body":         "An Act to amend the Excise Tax Act and the Competition Act.",
		"published_at": "2023-12-15T00:00:00Z",
		"source_url":   "https://www.parl.ca/legisinfo/en/bill/44-1/c-56",
	}
}

func TestIngestRaw(t *testing.T) {
	t.Run("stores document and opens ingest row", func(t *testing.T) {
		store, router := newRouter(t)

		rr := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/raw", rawBody()))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		resp := testutil.DecodeResponse[ingest.ReceiptResponse](t, rr)
		assert.True(t, resp.Created)
		assert.Equal(t, "pending_evidence_creation", resp.Status)

		raw, err := store.FindRaw(context.Background(), "C-56")
		require.NoError(t, err)
		assert.Equal(t, models.FeedLegisinfoBillEvent, raw.FeedType)
		assert.Equal(t, now, raw.IngestedAt)

		rec, err := store.FindIngest(context.Background(), "C-56")
		require.NoError(t, err)
		assert.Equal(t, models.IngestStatusPendingEvidenceCreation, rec.Status)
		assert.Equal(t, time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC), rec.PublishedAt)
	})

	t.Run("repeat intake keeps the first copy", func(t *testing.T) {
		store, router := newRouter(t)
		require.Equal(t, http.StatusCreated, testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/raw", rawBody())).Code)

		changed := rawBody()
		changed["title"] = "Edited title"
		rr := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/raw", changed))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.False(t, testutil.DecodeResponse[ingest.ReceiptResponse](t, rr).Created)

		raw, err := store.FindRaw(context.Background(), "C-56")
		require.NoError(t, err)
		assert.Equal(t, "Bill C-56 receives royal assent", raw.Title)
	})

	t.Run("malformed content is accepted for the materializer to stamp", func(t *testing.T) {
		_, router := newRouter(t)
		body := rawBody()
		delete(body, "title")
		rr := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/raw", body))
		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("rejects missing id", func(t *testing.T) {
		_, router := newRouter(t)
		body := rawBody()
		body["id"] = "  "
		rr := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/raw", body))
		testutil.AssertError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("rejects unknown feed", func(t *testing.T) {
		_, router := newRouter(t)
		body := rawBody()
		body["feed_type"] = "provincial_hansard"
		rr := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/raw", body))
		testutil.AssertError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, router := newRouter(t)
		body := rawBody()
		body["processing_status"] = "linked"
		rr := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/raw", body))
		testutil.AssertError(t, rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}
