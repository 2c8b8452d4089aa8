package memory

import (
	"context"
	"fmt"
	"sort"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/sentinel"
)

// InsertLink stores l unless its (promise, evidence) pair already has a link
// in any status. It reports whether l was written.
func (s *Store) InsertLink(ctx context.Context, l *models.PotentialLink) (bool, error) {
	created := false
	err := s.with(ctx, func(tx *txState) error {
		key := pairKey{promise: l.PromiseID, evidence: l.EvidenceID}
		if _, ok := s.linkPairs[key]; ok {
			return nil
		}
		if _, ok := s.links[l.ID]; ok {
			return fmt.Errorf("link %s: %w", l.ID, sentinel.ErrConflict)
		}
		s.links[l.ID] = l.Clone()
		s.linkPairs[key] = l.ID
		tx.remember(func() {
			delete(s.links, l.ID)
			delete(s.linkPairs, key)
		})
		created = true
		return nil
	})
	return created, err
}

func (s *Store) FindLink(ctx context.Context, linkID id.LinkID) (*models.PotentialLink, error) {
	var out *models.PotentialLink
	err := s.with(ctx, func(_ *txState) error {
		l, ok := s.links[linkID]
		if !ok {
			return fmt.Errorf("link %s: %w", linkID, sentinel.ErrNotFound)
		}
		out = l.Clone()
		return nil
	})
	return out, err
}

func (s *Store) LockLink(ctx context.Context, linkID id.LinkID) (*models.PotentialLink, error) {
	return s.FindLink(ctx, linkID)
}

// ResolveLink writes the review fields of l, provided the stored link is
// still pending.
func (s *Store) ResolveLink(ctx context.Context, l *models.PotentialLink) error {
	return s.with(ctx, func(tx *txState) error {
		cur, ok := s.links[l.ID]
		if !ok {
			return fmt.Errorf("link %s: %w", l.ID, sentinel.ErrNotFound)
		}
		if cur.LinkStatus != models.LinkStatusPendingReview {
			return fmt.Errorf("link %s is %s: %w", l.ID, cur.LinkStatus, sentinel.ErrInvalidState)
		}
		prev := cur.Clone()
		next := cur.Clone()
		next.LinkStatus = l.LinkStatus
		next.ReviewedAt = l.Clone().ReviewedAt
		next.ReviewerNotes = l.ReviewerNotes
		s.links[l.ID] = next
		tx.remember(func() { s.links[l.ID] = prev })
		return nil
	})
}

func (s *Store) ListLinksByEvidence(ctx context.Context, evidenceID id.EvidenceID) ([]*models.PotentialLink, error) {
	return s.filterLinks(ctx, func(l *models.PotentialLink) bool { return l.EvidenceID == evidenceID })
}

func (s *Store) ListLinksByStatus(ctx context.Context, status models.LinkStatus) ([]*models.PotentialLink, error) {
	return s.filterLinks(ctx, func(l *models.PotentialLink) bool { return l.LinkStatus == status })
}

func (s *Store) CountPendingLinks(ctx context.Context, evidenceID id.EvidenceID) (int, error) {
	links, err := s.filterLinks(ctx, func(l *models.PotentialLink) bool {
		return l.EvidenceID == evidenceID && l.LinkStatus == models.LinkStatusPendingReview
	})
	return len(links), err
}

// ListPendingLinks pages pending links in (created_at, id) order, starting
// after the cursor when one is given.
func (s *Store) ListPendingLinks(ctx context.Context, limit int, after *models.LinkCursor) ([]*models.PotentialLink, error) {
	links, err := s.filterLinks(ctx, func(l *models.PotentialLink) bool {
		if l.LinkStatus != models.LinkStatusPendingReview {
			return false
		}
		return after == nil || after.After(l)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (s *Store) filterLinks(ctx context.Context, keep func(l *models.PotentialLink) bool) ([]*models.PotentialLink, error) {
	var out []*models.PotentialLink
	err := s.with(ctx, func(_ *txState) error {
		for _, l := range s.links {
			if keep(l) {
				out = append(out, l.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}
