package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"promisetracker/internal/models"
)

// AppendOutbox writes entry in the caller's transaction.
func (s *Store) AppendOutbox(ctx context.Context, entry *models.OutboxEntry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.AggregateType, entry.AggregateID, entry.EventType, entry.Payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListUnpublishedOutbox returns up to limit unpublished entries, oldest first.
// Inside a transaction rows are locked and other workers skip them.
func (s *Store) ListUnpublishedOutbox(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`
	if q := forUpdate(ctx, query); q != query {
		query = q + " SKIP LOCKED"
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []*models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

func (s *Store) MarkOutboxPublished(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, entryID := range ids {
		keys[i] = entryID.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`, pq.Array(keys), now)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
