// Package materializer turns raw documents into evidence items.
package materializer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/sentinel"
	pstrings "promisetracker/pkg/platform/strings"
	"promisetracker/pkg/platform/tx"
	"promisetracker/pkg/requestcontext"
)

const (
	DefaultSummaryRunes = 1000
	DefaultMinKeywords  = 3
)

type Store interface {
	FindRaw(ctx context.Context, rawID id.RawID) (*models.RawDocument, error)
	FindIngest(ctx context.Context, rawID id.RawID) (*models.IngestRecord, error)
	FindEvidenceBySourceKey(ctx context.Context, sourceKey string) (*models.EvidenceItem, error)
	CreateEvidence(ctx context.Context, e *models.EvidenceItem) error
	TransitionIngest(ctx context.Context, rawID id.RawID, from models.IngestStatus, out models.IngestOutcome, now time.Time) error
}

// Session is a parliamentary session and the date it opened.
type Session struct {
	Name  string    `mapstructure:"name" yaml:"name"`
	Start time.Time `mapstructure:"start" yaml:"start"`
}

// Outcome reports what one materialization attempt did.
type Outcome struct {
	RawID      id.RawID
	Status     models.IngestStatus
	EvidenceID id.EvidenceID
	// Created is false when the item already existed or nothing was written.
	Created bool
	Reason  string
}

type Materializer struct {
	store        Store
	tx           tx.Runner
	filter       Filter
	summaryRunes int
	sessions     []Session
	logger       *slog.Logger
}

type Option func(*Materializer)

// WithFilter replaces the relevance pre-filter. Nil admits everything.
func WithFilter(f Filter) Option {
	return func(m *Materializer) {
		m.filter = f
	}
}

func WithSummaryRunes(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.summaryRunes = n
		}
	}
}

// WithSessions sets the calendar used to stamp an item's parliament session
// from its evidence date.
func WithSessions(sessions []Session) Option {
	return func(m *Materializer) {
		m.sessions = append([]Session(nil), sessions...)
		sort.Slice(m.sessions, func(i, j int) bool {
			return m.sessions[i].Start.Before(m.sessions[j].Start)
		})
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Materializer) {
		m.logger = logger
	}
}

func New(store Store, runner tx.Runner, opts ...Option) *Materializer {
	m := &Materializer{
		store:        store,
		tx:           runner,
		summaryRunes: DefaultSummaryRunes,
		logger:       slog.Default(),
	}
	m.filter, _ = NewKeywordFilter(DefaultMinKeywords, nil)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize processes one raw document whose ingest row needs work. A row
// already past materialization is reported as is without writing. Malformed
// payloads are stamped error_materialization and do not return an error.
func (m *Materializer) Materialize(ctx context.Context, rawID id.RawID) (Outcome, error) {
	rec, err := m.store.FindIngest(ctx, rawID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Outcome{}, dErrors.New(dErrors.CodeNotFound, "no ingest record for raw document "+rawID.String())
		}
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ingest record")
	}
	if !rec.Status.NeedsMaterialization() {
		return Outcome{RawID: rawID, Status: rec.Status, EvidenceID: rec.EvidenceID}, nil
	}

	raw, err := m.store.FindRaw(ctx, rawID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return m.stamp(ctx, rec, models.IngestOutcome{
				Status: models.IngestStatusErrorMaterialization,
				Error:  "raw document missing",
			})
		}
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load raw document")
	}

	if err := raw.Validate(); err != nil {
		m.logger.WarnContext(ctx, "malformed raw document",
			"raw_id", rawID, "feed_type", raw.FeedType, "error", err)
		return m.stamp(ctx, rec, models.IngestOutcome{
			Status: models.IngestStatusErrorMaterialization,
			Error:  reason(err),
		})
	}

	if m.filter != nil {
		if ok, why := m.filter.Relevant(raw); !ok {
			return m.stamp(ctx, rec, models.IngestOutcome{
				Status: models.IngestStatusSkippedLowRelevance,
				Error:  why,
			})
		}
	}

	// A concurrent creator may win the unique source key between our check
	// and insert; the second attempt then finds its item.
	for attempt := 0; ; attempt++ {
		out, err := m.create(ctx, rec, raw)
		if errors.Is(err, sentinel.ErrConflict) && attempt == 0 {
			continue
		}
		return out, err
	}
}

func (m *Materializer) create(ctx context.Context, rec *models.IngestRecord, raw *models.RawDocument) (Outcome, error) {
	now := requestcontext.Now(ctx)
	out := Outcome{RawID: raw.ID, Status: models.IngestStatusEvidenceCreated}

	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := m.store.FindEvidenceBySourceKey(ctx, raw.SourceKey())
		switch {
		case err == nil:
			out.EvidenceID = existing.ID
		case errors.Is(err, sentinel.ErrNotFound):
			item := m.build(raw, now)
			if err := m.store.CreateEvidence(ctx, item); err != nil {
				return err
			}
			out.EvidenceID = item.ID
			out.Created = true
		default:
			return err
		}
		return m.store.TransitionIngest(ctx, raw.ID, rec.Status, models.IngestOutcome{
			Status:     models.IngestStatusEvidenceCreated,
			EvidenceID: out.EvidenceID,
		}, now)
	})
	switch {
	case err == nil:
		if out.Created {
			m.logger.DebugContext(ctx, "evidence created", "raw_id", raw.ID, "evidence_id", out.EvidenceID)
		}
		return out, nil
	case errors.Is(err, sentinel.ErrConflict):
		return Outcome{}, err
	case errors.Is(err, sentinel.ErrInvalidState):
		return m.current(ctx, raw.ID)
	default:
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to materialize evidence")
	}
}

func (m *Materializer) stamp(ctx context.Context, rec *models.IngestRecord, next models.IngestOutcome) (Outcome, error) {
	if !rec.Status.CanTransitionTo(next.Status) {
		return Outcome{}, dErrors.New(dErrors.CodeInvariantViolation,
			"ingest record cannot move from "+string(rec.Status)+" to "+string(next.Status))
	}
	err := m.store.TransitionIngest(ctx, rec.RawID, rec.Status, next, requestcontext.Now(ctx))
	if errors.Is(err, sentinel.ErrInvalidState) {
		return m.current(ctx, rec.RawID)
	}
	if err != nil {
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stamp ingest record")
	}
	return Outcome{RawID: rec.RawID, Status: next.Status, Reason: next.Error}, nil
}

// current reports the ingest row as another worker left it.
func (m *Materializer) current(ctx context.Context, rawID id.RawID) (Outcome, error) {
	rec, err := m.store.FindIngest(ctx, rawID)
	if err != nil {
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload ingest record")
	}
	return Outcome{RawID: rawID, Status: rec.Status, EvidenceID: rec.EvidenceID, Reason: rec.LastError}, nil
}

func (m *Materializer) build(raw *models.RawDocument, now time.Time) *models.EvidenceItem {
	sourceType, _ := raw.FeedType.SourceType()
	key := raw.SourceKey()
	return &models.EvidenceItem{
		ID:                id.EvidenceIDForSource(key),
		SourceKey:         key,
		SourceType:        sourceType,
		Title:             pstrings.CollapseSpace(raw.Title),
		Summary:           pstrings.TruncateRunes(pstrings.CollapseSpace(raw.Body), m.summaryRunes),
		EvidenceDate:      raw.PublishedAt,
		SourceURL:         raw.SourceURL,
		ParliamentSession: m.sessionAt(raw.PublishedAt),
		ExtractedKeywords: models.StringSet{},
		PromiseIDs:        models.StringSet{},
		ProcessingStatus:  models.EvidenceStatusPendingLinkGeneration,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (m *Materializer) sessionAt(t time.Time) string {
	name := ""
	for _, s := range m.sessions {
		if s.Start.After(t) {
			break
		}
		name = s.Name
	}
	return name
}

func reason(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
