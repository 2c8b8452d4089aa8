package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"promisetracker/internal/batch"
	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/httputil"
	"promisetracker/pkg/requestcontext"
)

// EditService is the subset of *Service the handler calls.
type EditService interface {
	CreatePromise(ctx context.Context, p *models.Promise) (*models.Promise, error)
	UpdatePromise(ctx context.Context, promiseID id.PromiseID, patch PromisePatch) (*models.Promise, error)
	UpdateEvidence(ctx context.Context, evidenceID id.EvidenceID, patch EvidencePatch) (*models.EvidenceItem, error)
	RunBatch(ctx context.Context, req batch.Request) (batch.Tally, error)
}

type Handler struct {
	service EditService
	logger  *slog.Logger
}

func NewHandler(service EditService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts admin endpoints under /admin.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/promises", h.HandleCreatePromise)
		r.Patch("/promises/{id}", h.HandleEditPromise)
		r.Patch("/evidence/{id}", h.HandleEditEvidence)
		r.Post("/batches", h.HandleRunBatch)
	})
}

func (h *Handler) HandleCreatePromise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreatePromiseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.CreatePromise(ctx, req.promise())
	if err != nil {
		h.fail(ctx, w, "create promise", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromPromise(p))
}

func (h *Handler) HandleEditPromise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	promiseID, err := id.ParsePromiseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := h.prepareEdit(w, r, func() (httputil.Preparable, error) {
		return decodeEdit[PromiseEditRequest](r)
	})
	if !ok {
		return
	}
	p, err := h.service.UpdatePromise(ctx, promiseID, req.(*PromiseEditRequest).patch())
	if err != nil {
		h.fail(ctx, w, "edit promise", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPromise(p))
}

func (h *Handler) HandleEditEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := h.prepareEdit(w, r, func() (httputil.Preparable, error) {
		return decodeEdit[EvidenceEditRequest](r)
	})
	if !ok {
		return
	}
	e, err := h.service.UpdateEvidence(ctx, evidenceID, req.(*EvidenceEditRequest).patch())
	if err != nil {
		h.fail(ctx, w, "edit evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEvidence(e))
}

// HandleRunBatch handles POST /admin/batches. The run is synchronous; callers
// should keep max_items small enough for their HTTP timeout.
func (h *Handler) HandleRunBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	tally, err := h.service.RunBatch(ctx, req.request())
	if err != nil {
		h.fail(ctx, w, "run batch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BatchResponse{Stage: req.Stage, Tally: tally})
}

func (h *Handler) prepareEdit(w http.ResponseWriter, r *http.Request, decode func() (httputil.Preparable, error)) (httputil.Preparable, bool) {
	ctx := r.Context()
	req, err := decode()
	if err == nil {
		req.Normalize()
		err = req.Validate()
	}
	if err != nil {
		h.logger.WarnContext(ctx, "invalid edit request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return nil, false
	}
	return req, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.ErrorContext(ctx, "admin request failed",
		"op", op,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
