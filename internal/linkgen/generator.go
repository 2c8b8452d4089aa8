// Package linkgen proposes candidate links between one evidence item and the
// active promises it may support.
package linkgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"promisetracker/internal/audit"
	"promisetracker/internal/models"
	"promisetracker/internal/platform/metrics"
	"promisetracker/internal/scoring"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/sentinel"
	"promisetracker/pkg/platform/tx"
	"promisetracker/pkg/requestcontext"
)

type Store interface {
	FindEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error)
	LockEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error)
	FindPromise(ctx context.Context, promiseID id.PromiseID) (*models.Promise, error)
	ListCandidatePromises(ctx context.Context, q models.CandidateQuery) ([]*models.Promise, error)
	ListLinksByEvidence(ctx context.Context, evidenceID id.EvidenceID) ([]*models.PotentialLink, error)
	InsertLink(ctx context.Context, l *models.PotentialLink) (bool, error)
	CountPendingLinks(ctx context.Context, evidenceID id.EvidenceID) (int, error)
	TransitionEvidence(ctx context.Context, evidenceID id.EvidenceID, from, to models.EvidenceStatus, now time.Time) error
	SetEvidenceKeywords(ctx context.Context, evidenceID id.EvidenceID, keywords models.StringSet, now time.Time) error
}

// AuditEmitter records quarantined items.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Scorer is satisfied by *scoring.Scorer.
type Scorer interface {
	Score(ctx context.Context, evidence, promise scoring.Text) (scoring.Result, error)
}

// Options scope one generation run.
type Options struct {
	// Force re-enters items that previously found no candidates.
	Force bool
	// Session limits candidates to promises of one parliament session.
	Session string
	// CandidateWindow limits candidates to promises issued within this
	// distance of the evidence date. Zero disables the window.
	CandidateWindow time.Duration
}

// Outcome reports what one run did to one item.
type Outcome struct {
	EvidenceID   id.EvidenceID
	From         models.EvidenceStatus
	Status       models.EvidenceStatus
	Scored       int
	LinksCreated int
	// Noop is set when the item was not eligible or another run moved it first.
	Noop bool
}

type Generator struct {
	store   Store
	tx      tx.Runner
	scorer  Scorer
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   AuditEmitter
}

type Option func(*Generator)

func WithAuditEmitter(e AuditEmitter) Option {
	return func(g *Generator) {
		g.audit = e
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

func New(store Store, runner tx.Runner, scorer Scorer, opts ...Option) *Generator {
	g := &Generator{store: store, tx: runner, scorer: scorer, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Eligible reports whether an item in status s is picked up by a run.
func Eligible(s models.EvidenceStatus, force bool) bool {
	return s == models.EvidenceStatusPendingLinkGeneration ||
		(force && s == models.EvidenceStatusNoCandidatesFound)
}

// EligibleStatuses lists the statuses a run claims.
func EligibleStatuses(force bool) []models.EvidenceStatus {
	if force {
		return []models.EvidenceStatus{models.EvidenceStatusPendingLinkGeneration, models.EvidenceStatusNoCandidatesFound}
	}
	return []models.EvidenceStatus{models.EvidenceStatusPendingLinkGeneration}
}

// Generate scores every unlinked candidate pair for the item and commits the
// accepted links, keywords and next status in one transaction. When scoring
// fails nothing is written and the oracle error is returned in the chain.
func (g *Generator) Generate(ctx context.Context, evidenceID id.EvidenceID, opts Options) (Outcome, error) {
	item, err := g.store.FindEvidence(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Outcome{}, dErrors.New(dErrors.CodeNotFound, "evidence not found")
		}
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	out := Outcome{EvidenceID: evidenceID, From: item.ProcessingStatus, Status: item.ProcessingStatus}
	if item.Deleted || !Eligible(item.ProcessingStatus, opts.Force) {
		out.Noop = true
		return out, nil
	}

	linked, err := g.existingPairs(ctx, item)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeDataIntegrity) {
			return g.quarantine(ctx, item, err)
		}
		return out, err
	}

	candidates, err := g.store.ListCandidatePromises(ctx, models.CandidateQuery{
		Session: opts.Session,
		Around:  item.EvidenceDate,
		Radius:  opts.CandidateWindow,
	})
	if err != nil {
		return out, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list candidate promises")
	}

	now := requestcontext.Now(ctx)
	evidenceText := scoring.NewText(item.QueryText())
	var accepted []*models.PotentialLink
	for _, p := range candidates {
		if _, ok := linked[p.ID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := g.scorer.Score(ctx, evidenceText, scoring.NewText(p.Text))
		if err != nil {
			return out, fmt.Errorf("score evidence %s against promise %s: %w", evidenceID, p.ID, err)
		}
		out.Scored++
		if res.Proposed {
			accepted = append(accepted, models.NewPotentialLink(p.ID, evidenceID,
				res.Overlap, res.Likelihood, res.Explanation, now))
		}
	}

	err = g.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := g.store.LockEvidence(ctx, evidenceID)
		if err != nil {
			return err
		}
		if current.ProcessingStatus != out.From {
			return fmt.Errorf("evidence %s moved to %s: %w", evidenceID, current.ProcessingStatus, sentinel.ErrInvalidState)
		}
		created := 0
		for _, l := range accepted {
			ok, err := g.store.InsertLink(ctx, l)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		pending, err := g.store.CountPendingLinks(ctx, evidenceID)
		if err != nil {
			return err
		}
		next := nextStatus(pending, current.HasPromises())
		if next != current.ProcessingStatus {
			if err := current.CanTransitionTo(next); err != nil {
				return err
			}
			if err := g.store.TransitionEvidence(ctx, evidenceID, current.ProcessingStatus, next, now); err != nil {
				return err
			}
		}
		if err := g.store.SetEvidenceKeywords(ctx, evidenceID, evidenceText.Keywords, now); err != nil {
			return err
		}
		out.Status = next
		out.LinksCreated = created
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return g.noop(ctx, out)
		}
		if dErrors.HasCode(err, dErrors.CodeTimeout) || dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return out, err
		}
		return out, dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit links")
	}

	g.metrics.AddLinksCreated(out.LinksCreated)
	g.logger.DebugContext(ctx, "links generated",
		"evidence_id", evidenceID,
		"scored", out.Scored,
		"links_created", out.LinksCreated,
		"status", out.Status,
	)
	return out, nil
}

// nextStatus decides where an item goes after a run.
func nextStatus(pendingLinks int, hasPromises bool) models.EvidenceStatus {
	switch {
	case pendingLinks > 0:
		return models.EvidenceStatusPendingReview
	case hasPromises:
		return models.EvidenceStatusLinked
	default:
		return models.EvidenceStatusNoCandidatesFound
	}
}

// existingPairs indexes the item's links by promise and checks every link
// still points at a stored promise.
func (g *Generator) existingPairs(ctx context.Context, item *models.EvidenceItem) (map[id.PromiseID]struct{}, error) {
	links, err := g.store.ListLinksByEvidence(ctx, item.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list existing links")
	}
	pairs := make(map[id.PromiseID]struct{}, len(links))
	for _, l := range links {
		if _, err := g.store.FindPromise(ctx, l.PromiseID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeDataIntegrity,
					fmt.Sprintf("link %s references missing promise %s", l.ID, l.PromiseID))
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked promise")
		}
		pairs[l.PromiseID] = struct{}{}
	}
	return pairs, nil
}

// quarantine moves the item out of automatic processing and returns cause.
func (g *Generator) quarantine(ctx context.Context, item *models.EvidenceItem, cause error) (Outcome, error) {
	out := Outcome{EvidenceID: item.ID, From: item.ProcessingStatus, Status: item.ProcessingStatus}
	g.logger.ErrorContext(ctx, "evidence excluded from link generation",
		"evidence_id", item.ID, "error", cause)
	err := g.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.store.TransitionEvidence(ctx, item.ID, item.ProcessingStatus,
			models.EvidenceStatusErrorDataIntegrity, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if g.audit == nil {
			return nil
		}
		return g.audit.Emit(ctx, audit.Event{
			Action:     audit.ActionEvidenceQuarantined,
			EvidenceID: item.ID.String(),
			Reason:     dErrors.MessageOf(cause),
		})
	})
	switch {
	case err == nil:
		out.Status = models.EvidenceStatusErrorDataIntegrity
	case errors.Is(err, sentinel.ErrInvalidState):
	default:
		g.logger.ErrorContext(ctx, "failed to quarantine evidence", "evidence_id", item.ID, "error", err)
	}
	return out, cause
}

func (g *Generator) noop(ctx context.Context, out Outcome) (Outcome, error) {
	out.Noop = true
	out.LinksCreated = 0
	current, err := g.store.FindEvidence(ctx, out.EvidenceID)
	if err != nil {
		return out, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload evidence")
	}
	out.Status = current.ProcessingStatus
	return out, nil
}
