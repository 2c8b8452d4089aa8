package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"promisetracker/internal/models"
	"promisetracker/internal/platform/metrics"
	"promisetracker/pkg/platform/tx"
	"promisetracker/pkg/requestcontext"
)

// OutboxStore is the relay's view of the outbox table.
type OutboxStore interface {
	tx.Runner
	ListUnpublishedOutbox(ctx context.Context, limit int) ([]*models.OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, ids []uuid.UUID, now time.Time) error
}

const (
	defaultBatchSize    = 100
	defaultPollInterval = 2 * time.Second
)

// Worker relays committed outbox entries to the publisher and marks them
// published. Entries are claimed with row locks inside the relay transaction
// so several workers can run side by side.
type Worker struct {
	store     OutboxStore
	publisher Publisher
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type WorkerOption func(*Worker)

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(store OutboxStore, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		batchSize: defaultBatchSize,
		interval:  defaultPollInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := w.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
				break
			}
			if n < w.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush relays one batch and returns how many entries were published.
func (w *Worker) Flush(ctx context.Context) (int, error) {
	published := 0
	err := w.store.RunInTx(ctx, func(ctx context.Context) error {
		entries, err := w.store.ListUnpublishedOutbox(ctx, w.batchSize)
		if err != nil {
			return fmt.Errorf("list outbox: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := w.publisher.Publish(ctx, entries); err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		if err := w.store.MarkOutboxPublished(ctx, ids, requestcontext.Now(ctx)); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
		published = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	w.metrics.AddOutboxPublished(published)
	return published, nil
}
