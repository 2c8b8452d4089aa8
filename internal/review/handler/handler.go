package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"promisetracker/internal/review"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/httputil"
	"promisetracker/pkg/requestcontext"
)

// Service defines the review operations exposed over HTTP.
type Service interface {
	Confirm(ctx context.Context, linkID id.LinkID, notes string) (*review.Result, error)
	Reject(ctx context.Context, linkID id.LinkID, reason string) (*review.Result, error)
	ListPendingLinks(ctx context.Context, limit int, cursor string) (*review.Page, error)
}

// Handler serves the review queue and decisions.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts review endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/links/pending", h.HandleListPending)
	r.Post("/links/{id}/confirm", h.HandleConfirm)
	r.Post("/links/{id}/reject", h.HandleReject)
}

// HandleListPending handles GET /links/pending.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	page, err := h.service.ListPendingLinks(ctx, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list pending links",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPage(page))
}

// HandleConfirm handles POST /links/{id}/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "confirm", func(ctx context.Context, linkID id.LinkID, req *DecisionRequest) (*review.Result, error) {
		return h.service.Confirm(ctx, linkID, req.Notes)
	})
}

// HandleReject handles POST /links/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "reject", func(ctx context.Context, linkID id.LinkID, req *DecisionRequest) (*review.Result, error) {
		return h.service.Reject(ctx, linkID, req.Reason)
	})
}

type decideFunc func(ctx context.Context, linkID id.LinkID, req *DecisionRequest) (*review.Result, error)

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, action string, decide decideFunc) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	linkID, err := id.ParseLinkID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := decide(ctx, linkID, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "review decision failed",
			"request_id", requestID,
			"action", action,
			"link_id", linkID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}
