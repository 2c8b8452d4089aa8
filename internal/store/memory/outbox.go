package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"promisetracker/internal/models"
)

func (s *Store) AppendOutbox(ctx context.Context, entry *models.OutboxEntry) error {
	return s.with(ctx, func(tx *txState) error {
		c := *entry
		s.outbox = append(s.outbox, &c)
		n := len(s.outbox)
		tx.remember(func() { s.outbox = s.outbox[:n-1] })
		return nil
	})
}

// ListUnpublishedOutbox returns up to limit unpublished entries, oldest first.
func (s *Store) ListUnpublishedOutbox(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	var out []*models.OutboxEntry
	err := s.with(ctx, func(_ *txState) error {
		for _, e := range s.outbox {
			if e.PublishedAt != nil {
				continue
			}
			c := *e
			out = append(out, &c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) MarkOutboxPublished(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	return s.with(ctx, func(tx *txState) error {
		want := make(map[uuid.UUID]struct{}, len(ids))
		for _, entryID := range ids {
			want[entryID] = struct{}{}
		}
		for _, e := range s.outbox {
			if _, ok := want[e.ID]; ok && e.PublishedAt == nil {
				published := now
				e.PublishedAt = &published
				tx.remember(func() { e.PublishedAt = nil })
			}
		}
		return nil
	})
}
