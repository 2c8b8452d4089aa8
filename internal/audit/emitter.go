package audit

import (
	"context"
	"fmt"
	"log/slog"

	"promisetracker/internal/models"
	"promisetracker/pkg/requestcontext"
)

// OutboxAppender is the store side of the transactional outbox.
type OutboxAppender interface {
	AppendOutbox(ctx context.Context, entry *models.OutboxEntry) error
}

// Emitter writes audit events to the outbox in the caller's transaction.
// A failed write is returned so the surrounding transaction rolls back.
type Emitter struct {
	store  OutboxAppender
	logger *slog.Logger
}

func NewEmitter(store OutboxAppender, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, logger: logger}
}

// Emit fills timestamp, actor and request id from ctx when unset.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires an action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Actor(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	entry, err := event.OutboxEntry()
	if err != nil {
		return err
	}
	if err := e.store.AppendOutbox(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "audit outbox write failed",
			"action", event.Action,
			"aggregate_id", entry.AggregateID,
			"error", err,
		)
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
