package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/httputil"
	"promisetracker/pkg/requestcontext"
)

type Intaker interface {
	Intake(ctx context.Context, raw *models.RawDocument) (*Receipt, error)
}

type Handler struct {
	service Intaker
	logger  *slog.Logger
}

func NewHandler(service Intaker, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/ingest/raw", h.HandleIngestRaw)
}

type RawRequest struct {
	ID          string    `json:"id"`
	FeedType    string    `json:"feed_type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	SourceURL   string    `json:"source_url"`
}

func (r *RawRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.FeedType = strings.ToLower(strings.TrimSpace(r.FeedType))
	r.SourceURL = strings.TrimSpace(r.SourceURL)
}

func (r *RawRequest) Validate() error {
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	if r.FeedType == "" {
		return dErrors.New(dErrors.CodeValidation, "feed_type is required")
	}
	return nil
}

func (r *RawRequest) document() *models.RawDocument {
	return &models.RawDocument{
		ID:          id.RawID(r.ID),
		FeedType:    models.FeedType(r.FeedType),
		Title:       r.Title,
		Body:        r.Body,
		PublishedAt: r.PublishedAt.UTC(),
		SourceURL:   r.SourceURL,
	}
}

type ReceiptResponse struct {
	RawID    string `json:"raw_id"`
	Created  bool   `json:"created"`
	Status   string `json:"status,omitempty"`
	Attempts int    `json:"attempts"`
}

// HandleIngestRaw handles POST /ingest/raw. A new document answers 201, a
// repeat 200.
func (h *Handler) HandleIngestRaw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RawRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.service.Intake(ctx, req.document())
	if err != nil {
		h.logger.WarnContext(ctx, "raw document intake failed",
			"request_id", requestID,
			"raw_id", req.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := ReceiptResponse{RawID: receipt.RawID.String(), Created: receipt.Created}
	if receipt.Record != nil {
		resp.Status = string(receipt.Record.Status)
		resp.Attempts = receipt.Record.Attempts
	}
	status := http.StatusOK
	if receipt.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, resp)
}
