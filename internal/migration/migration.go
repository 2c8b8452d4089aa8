// Package migration brings legacy records into the pipeline's status
// vocabulary and audits the promise/evidence reference sets.
package migration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/platform/sentinel"
	"promisetracker/pkg/requestcontext"
)

type Store interface {
	ListRawWithoutIngest(ctx context.Context) ([]*models.RawDocument, error)
	OpenIngest(ctx context.Context, rec *models.IngestRecord) (bool, error)
	ListEvidenceWithoutStatus(ctx context.Context) ([]*models.EvidenceItem, error)
	StampEvidenceStatus(ctx context.Context, evidenceID id.EvidenceID, status models.EvidenceStatus, now time.Time) error

	ListPromises(ctx context.Context) ([]*models.Promise, error)
	ListEvidence(ctx context.Context) ([]*models.EvidenceItem, error)
	ListLinksByStatus(ctx context.Context, status models.LinkStatus) ([]*models.PotentialLink, error)
}

// Report summarizes one migration pass. In a dry run the counts are what
// would have been written.
type Report struct {
	DryRun          bool `json:"dry_run" yaml:"dry_run"`
	IngestOpened    int  `json:"ingest_opened" yaml:"ingest_opened"`
	EvidenceStamped int  `json:"evidence_stamped" yaml:"evidence_stamped"`
}

type Migrator struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{store: store, logger: logger}
}

// Run opens a pending_evidence_creation row for every raw document without
// one and stamps pending_link_generation on items with no defined status.
// Each record is written on its own, so an interrupted run can be repeated.
func (m *Migrator) Run(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{DryRun: dryRun}
	now := requestcontext.Now(ctx)

	raws, err := m.store.ListRawWithoutIngest(ctx)
	if err != nil {
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list raw documents")
	}
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "migration cancelled")
		}
		if dryRun {
			report.IngestOpened++
			continue
		}
		opened, err := m.store.OpenIngest(ctx, models.NewIngestRecord(raw, now))
		if err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open ingest record for "+raw.ID.String())
		}
		if opened {
			report.IngestOpened++
		}
	}

	items, err := m.store.ListEvidenceWithoutStatus(ctx)
	if err != nil {
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	for _, e := range items {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "migration cancelled")
		}
		if dryRun {
			report.EvidenceStamped++
			continue
		}
		err := m.store.StampEvidenceStatus(ctx, e.ID, models.EvidenceStatusPendingLinkGeneration, now)
		switch {
		case err == nil:
			report.EvidenceStamped++
		case errors.Is(err, sentinel.ErrInvalidState):
			// stamped by a concurrent writer
		default:
			return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stamp evidence "+e.ID.String())
		}
	}

	m.logger.InfoContext(ctx, "migration complete",
		"dry_run", dryRun,
		"ingest_opened", report.IngestOpened,
		"evidence_stamped", report.EvidenceStamped,
	)
	return report, nil
}
