// Package ingest is the hand-off point for source connectors: it stores raw
// documents immutably and opens their ingest rows for the materializer.
package ingest

import (
	"context"
	"errors"
	"log/slog"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/sentinel"
	"promisetracker/pkg/requestcontext"
)

type Store interface {
	SaveRaw(ctx context.Context, raw *models.RawDocument, rec *models.IngestRecord) (bool, error)
	FindIngest(ctx context.Context, rawID id.RawID) (*models.IngestRecord, error)
}

// Receipt tells the connector whether the document was new.
type Receipt struct {
	RawID   id.RawID
	Created bool
	Record  *models.IngestRecord
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Intake stores raw and opens its pending_evidence_creation row. A raw id that
// was already taken in is left as stored and reported with Created false.
// Content problems beyond identity are the materializer's to record.
func (s *Service) Intake(ctx context.Context, raw *models.RawDocument) (*Receipt, error) {
	if raw.ID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "raw document id is required")
	}
	if !raw.FeedType.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown feed type: "+string(raw.FeedType))
	}

	now := requestcontext.Now(ctx)
	doc := *raw
	doc.IngestedAt = now
	created, err := s.store.SaveRaw(ctx, &doc, models.NewIngestRecord(&doc, now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store raw document")
	}

	rec, err := s.store.FindIngest(ctx, raw.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// legacy raw documents have no ingest row until migrated
		rec = nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ingest record")
	}

	if created {
		s.logger.InfoContext(ctx, "raw document ingested",
			"raw_id", raw.ID,
			"feed_type", raw.FeedType,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return &Receipt{RawID: raw.ID, Created: created, Record: rec}, nil
}
