// Package admin serves the curator-facing edits of promises and evidence and
// on-demand batch runs. Fields owned by the pipeline are never writable here.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"promisetracker/internal/audit"
	"promisetracker/internal/batch"
	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/sentinel"
	"promisetracker/pkg/platform/tx"
	"promisetracker/pkg/requestcontext"
)

type Store interface {
	FindPromise(ctx context.Context, promiseID id.PromiseID) (*models.Promise, error)
	SavePromise(ctx context.Context, p *models.Promise) error
	UpdatePromise(ctx context.Context, p *models.Promise) error
	FindEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error)
	UpdateEvidence(ctx context.Context, e *models.EvidenceItem) error
}

type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

type BatchRunner interface {
	RunBatch(ctx context.Context, req batch.Request) (batch.Tally, error)
}

// PromisePatch carries the editable promise fields; nil leaves a field as is.
type PromisePatch struct {
	Text              *string
	Department        *string
	ParliamentSession *string
	DateIssued        *time.Time
	Status            *models.PromiseStatus
}

// EvidencePatch carries the editable evidence fields; nil leaves a field as is.
type EvidencePatch struct {
	Title             *string
	Summary           *string
	SourceURL         *string
	ParliamentSession *string
	EvidenceDate      *time.Time
	Deleted           *bool
}

type Service struct {
	store   Store
	tx      tx.Runner
	batches BatchRunner
	audit   AuditEmitter
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditEmitter(e AuditEmitter) Option {
	return func(s *Service) {
		s.audit = e
	}
}

func WithBatchRunner(r BatchRunner) Option {
	return func(s *Service) {
		s.batches = r
	}
}

func New(store Store, runner tx.Runner, opts ...Option) *Service {
	s := &Service{store: store, tx: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePromise stores a new active promise with an empty linked set.
func (s *Service) CreatePromise(ctx context.Context, p *models.Promise) (*models.Promise, error) {
	if strings.TrimSpace(string(p.ID)) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "promise id is required")
	}
	if strings.TrimSpace(p.Text) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "promise text is required")
	}
	created := p.Clone()
	if created.Status == "" {
		created.Status = models.PromiseStatusActive
	}
	if !created.Status.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown promise status: "+string(created.Status))
	}
	created.LinkedEvidenceIDs = models.StringSet{}
	created.UpdatedAt = requestcontext.Now(ctx)

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.store.FindPromise(ctx, created.ID)
		switch {
		case err == nil:
			return dErrors.New(dErrors.CodeConflict, "promise already exists")
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check promise")
		}
		if err := s.store.SavePromise(ctx, created); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save promise")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdatePromise applies patch and records which keys changed. A patch that
// changes nothing writes nothing.
func (s *Service) UpdatePromise(ctx context.Context, promiseID id.PromiseID, patch PromisePatch) (*models.Promise, error) {
	var out *models.Promise
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.store.FindPromise(ctx, promiseID)
		if err != nil {
			return notFound(err, "promise")
		}
		changed, err := applyPromisePatch(p, patch)
		if err != nil {
			return err
		}
		out = p
		if len(changed) == 0 {
			return nil
		}
		p.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.UpdatePromise(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update promise")
		}
		return s.emit(ctx, audit.Event{
			Action:      audit.ActionPromiseEdited,
			PromiseID:   promiseID.String(),
			ChangedKeys: changed,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEvidence applies patch to the item's curated fields.
func (s *Service) UpdateEvidence(ctx context.Context, evidenceID id.EvidenceID, patch EvidencePatch) (*models.EvidenceItem, error) {
	var out *models.EvidenceItem
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.store.FindEvidence(ctx, evidenceID)
		if err != nil {
			return notFound(err, "evidence")
		}
		changed, err := applyEvidencePatch(e, patch)
		if err != nil {
			return err
		}
		out = e
		if len(changed) == 0 {
			return nil
		}
		e.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.UpdateEvidence(ctx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update evidence")
		}
		return s.emit(ctx, audit.Event{
			Action:      audit.ActionEvidenceEdited,
			EvidenceID:  evidenceID.String(),
			ChangedKeys: changed,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunBatch starts a bounded run and waits for its tally.
func (s *Service) RunBatch(ctx context.Context, req batch.Request) (batch.Tally, error) {
	if s.batches == nil {
		return batch.Tally{}, dErrors.New(dErrors.CodeUnavailable, "batch runs are not enabled")
	}
	return s.batches.RunBatch(ctx, req)
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func applyPromisePatch(p *models.Promise, patch PromisePatch) ([]string, error) {
	var changed []string
	if patch.Text != nil && *patch.Text != p.Text {
		if strings.TrimSpace(*patch.Text) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "text must not be empty")
		}
		p.Text = *patch.Text
		changed = append(changed, "text")
	}
	if patch.Department != nil && *patch.Department != p.Department {
		p.Department = *patch.Department
		changed = append(changed, "department")
	}
	if patch.ParliamentSession != nil && *patch.ParliamentSession != p.ParliamentSession {
		p.ParliamentSession = *patch.ParliamentSession
		changed = append(changed, "parliament_session")
	}
	if patch.DateIssued != nil && !patch.DateIssued.Equal(p.DateIssued) {
		p.DateIssued = patch.DateIssued.UTC()
		changed = append(changed, "date_issued")
	}
	if patch.Status != nil && *patch.Status != p.Status {
		if !patch.Status.Valid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown promise status: "+string(*patch.Status))
		}
		p.Status = *patch.Status
		changed = append(changed, "status")
	}
	return changed, nil
}

func applyEvidencePatch(e *models.EvidenceItem, patch EvidencePatch) ([]string, error) {
	var changed []string
	if patch.Title != nil && *patch.Title != e.Title {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "title must not be empty")
		}
		e.Title = *patch.Title
		changed = append(changed, "title")
	}
	if patch.Summary != nil && *patch.Summary != e.Summary {
		e.Summary = *patch.Summary
		changed = append(changed, "summary")
	}
	if patch.SourceURL != nil && *patch.SourceURL != e.SourceURL {
		if *patch.SourceURL != "" {
			u, err := url.Parse(*patch.SourceURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, dErrors.New(dErrors.CodeValidation, "source_url must be an absolute url")
			}
		}
		e.SourceURL = *patch.SourceURL
		changed = append(changed, "source_url")
	}
	if patch.ParliamentSession != nil && *patch.ParliamentSession != e.ParliamentSession {
		e.ParliamentSession = *patch.ParliamentSession
		changed = append(changed, "parliament_session")
	}
	if patch.EvidenceDate != nil && !patch.EvidenceDate.Equal(e.EvidenceDate) {
		if patch.EvidenceDate.IsZero() {
			return nil, dErrors.New(dErrors.CodeValidation, "evidence_date must not be zero")
		}
		e.EvidenceDate = patch.EvidenceDate.UTC()
		changed = append(changed, "evidence_date")
	}
	if patch.Deleted != nil && *patch.Deleted != e.Deleted {
		e.Deleted = *patch.Deleted
		changed = append(changed, "deleted")
	}
	return changed, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
