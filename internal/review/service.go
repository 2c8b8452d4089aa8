// Package review resolves potential links through human confirm and reject
// decisions.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"promisetracker/internal/audit"
	"promisetracker/internal/models"
	"promisetracker/internal/platform/metrics"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/sentinel"
	"promisetracker/pkg/platform/tx"
	"promisetracker/pkg/requestcontext"
)

type Store interface {
	LockLink(ctx context.Context, linkID id.LinkID) (*models.PotentialLink, error)
	LockPromise(ctx context.Context, promiseID id.PromiseID) (*models.Promise, error)
	LockEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error)
	ResolveLink(ctx context.Context, l *models.PotentialLink) error
	AddPromiseEvidence(ctx context.Context, promiseID id.PromiseID, evidenceID id.EvidenceID, now time.Time) error
	AddEvidencePromise(ctx context.Context, evidenceID id.EvidenceID, promiseID id.PromiseID, now time.Time) error
	TransitionEvidence(ctx context.Context, evidenceID id.EvidenceID, from, to models.EvidenceStatus, now time.Time) error
	CountPendingLinks(ctx context.Context, evidenceID id.EvidenceID) (int, error)
	ListPendingLinks(ctx context.Context, limit int, after *models.LinkCursor) ([]*models.PotentialLink, error)
}

type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ResultStatus tells the caller whether the decision was applied.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusNoop    ResultStatus = "noop"
)

// Result is returned for every decision on an existing link. A noop is not
// an error: the link had already been resolved and nothing was written.
type Result struct {
	Status  ResultStatus
	Message string
	Link    *models.PotentialLink
}

type decision string

const (
	decisionConfirm decision = "confirm"
	decisionReject  decision = "reject"
)

type Service struct {
	store   Store
	tx      tx.Runner
	audit   AuditEmitter
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditEmitter records each applied decision in the same transaction.
func WithAuditEmitter(e AuditEmitter) Option {
	return func(s *Service) {
		s.audit = e
	}
}

func New(store Store, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     runner,
		logger: slog.Default(),
		tracer: otel.Tracer("promisetracker/review"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Confirm links the promise and evidence of a pending link. The link, both
// reference sets and the evidence status commit together or not at all.
func (s *Service) Confirm(ctx context.Context, linkID id.LinkID, notes string) (*Result, error) {
	return s.decide(ctx, decisionConfirm, linkID, notes)
}

// Reject closes a pending link without touching either reference set.
func (s *Service) Reject(ctx context.Context, linkID id.LinkID, reason string) (*Result, error) {
	return s.decide(ctx, decisionReject, linkID, reason)
}

func (s *Service) decide(ctx context.Context, d decision, linkID id.LinkID, notes string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "review."+string(d),
		trace.WithAttributes(attribute.String("link_id", linkID.String())))
	defer span.End()

	var res *Result
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.apply(ctx, d, linkID, notes)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "review failed")
		s.metrics.IncReviewDecision(string(d), string(dErrors.CodeOf(err)))
		if dErrors.HasCode(err, dErrors.CodeDataIntegrity) {
			s.logger.ErrorContext(ctx, "review aborted on data integrity error",
				"decision", d,
				"link_id", linkID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("result", string(res.Status)))
	s.metrics.IncReviewDecision(string(d), string(res.Status))
	s.logger.InfoContext(ctx, "review decision",
		"decision", d,
		"link_id", linkID,
		"result", res.Status,
		"actor", requestcontext.Actor(ctx),
	)
	return res, nil
}

func (s *Service) apply(ctx context.Context, d decision, linkID id.LinkID, notes string) (*Result, error) {
	link, err := s.store.LockLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "link not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load link")
	}
	if err := link.CanResolve(); err != nil {
		return &Result{Status: StatusNoop, Message: "link already " + string(link.LinkStatus), Link: link}, nil
	}

	if _, err := s.store.LockPromise(ctx, link.PromiseID); err != nil {
		return nil, integrity(err, "promise", string(link.PromiseID))
	}
	evidence, err := s.store.LockEvidence(ctx, link.EvidenceID)
	if err != nil {
		return nil, integrity(err, "evidence", string(link.EvidenceID))
	}

	now := requestcontext.Now(ctx)
	event := audit.Event{
		LinkID:     link.ID.String(),
		PromiseID:  string(link.PromiseID),
		EvidenceID: string(link.EvidenceID),
		Reason:     notes,
	}
	switch d {
	case decisionConfirm:
		link.ApplyConfirm(now, notes)
		event.Action, event.Decision = audit.ActionLinkConfirmed, string(models.LinkStatusConfirmed)
	case decisionReject:
		link.ApplyReject(now, notes)
		event.Action, event.Decision = audit.ActionLinkRejected, string(models.LinkStatusRejected)
	}
	if err := s.store.ResolveLink(ctx, link); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "link resolved concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve link")
	}

	var next models.EvidenceStatus
	switch d {
	case decisionConfirm:
		if err := s.store.AddPromiseEvidence(ctx, link.PromiseID, link.EvidenceID, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update promise references")
		}
		if err := s.store.AddEvidencePromise(ctx, link.EvidenceID, link.PromiseID, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update evidence references")
		}
		if evidence.ProcessingStatus == models.EvidenceStatusPendingReview {
			next = models.EvidenceStatusLinked
		}
	case decisionReject:
		if evidence.ProcessingStatus == models.EvidenceStatusPendingReview && !evidence.HasPromises() {
			pending, err := s.store.CountPendingLinks(ctx, link.EvidenceID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pending links")
			}
			if pending == 0 {
				next = models.EvidenceStatusNoCandidatesFound
			}
		}
	}
	if next != "" {
		if err := s.store.TransitionEvidence(ctx, link.EvidenceID, evidence.ProcessingStatus, next, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update evidence status")
		}
	}

	if s.audit != nil {
		if err := s.audit.Emit(ctx, event); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review decision")
		}
	}
	return &Result{Status: StatusSuccess, Message: "link " + string(link.LinkStatus), Link: link}, nil
}

func integrity(err error, kind, ref string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeDataIntegrity, fmt.Sprintf("link references missing %s %s", kind, ref))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+kind)
}
