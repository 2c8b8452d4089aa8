package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/sentinel"
)

// CreateEvidence inserts e. A taken ID or source key returns ErrConflict.
func (s *Store) CreateEvidence(ctx context.Context, e *models.EvidenceItem) error {
	return s.with(ctx, func(tx *txState) error {
		if _, ok := s.bySource[e.SourceKey]; ok {
			return fmt.Errorf("evidence source key %s: %w", e.SourceKey, sentinel.ErrConflict)
		}
		if _, ok := s.evidence[e.ID]; ok {
			return fmt.Errorf("evidence %s: %w", e.ID, sentinel.ErrConflict)
		}
		s.evidence[e.ID] = &evidenceRow{item: e.Clone()}
		s.bySource[e.SourceKey] = e.ID
		tx.remember(func() {
			delete(s.evidence, e.ID)
			delete(s.bySource, e.SourceKey)
		})
		return nil
	})
}

func (s *Store) FindEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error) {
	var out *models.EvidenceItem
	err := s.with(ctx, func(_ *txState) error {
		row, ok := s.evidence[evidenceID]
		if !ok {
			return fmt.Errorf("evidence %s: %w", evidenceID, sentinel.ErrNotFound)
		}
		out = row.item.Clone()
		return nil
	})
	return out, err
}

// LockEvidence reads e for update. The store lock already serializes writers.
func (s *Store) LockEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error) {
	return s.FindEvidence(ctx, evidenceID)
}

func (s *Store) FindEvidenceBySourceKey(ctx context.Context, sourceKey string) (*models.EvidenceItem, error) {
	var out *models.EvidenceItem
	err := s.with(ctx, func(_ *txState) error {
		evidenceID, ok := s.bySource[sourceKey]
		if !ok {
			return fmt.Errorf("evidence source key %s: %w", sourceKey, sentinel.ErrNotFound)
		}
		out = s.evidence[evidenceID].item.Clone()
		return nil
	})
	return out, err
}

func (s *Store) ListEvidence(ctx context.Context) ([]*models.EvidenceItem, error) {
	var out []*models.EvidenceItem
	err := s.with(ctx, func(_ *txState) error {
		for _, row := range s.evidence {
			out = append(out, row.item.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// ListEvidenceWithoutStatus returns legacy items whose status is missing or
// not a defined value.
func (s *Store) ListEvidenceWithoutStatus(ctx context.Context) ([]*models.EvidenceItem, error) {
	all, err := s.ListEvidence(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if !e.ProcessingStatus.Valid() {
			out = append(out, e)
		}
	}
	return out, nil
}

// StampEvidenceStatus sets the status of a legacy item that has none.
func (s *Store) StampEvidenceStatus(ctx context.Context, evidenceID id.EvidenceID, status models.EvidenceStatus, now time.Time) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.evidence[evidenceID]
		if !ok {
			return fmt.Errorf("evidence %s: %w", evidenceID, sentinel.ErrNotFound)
		}
		if row.item.ProcessingStatus.Valid() {
			return fmt.Errorf("evidence %s already has status %s: %w", evidenceID, row.item.ProcessingStatus, sentinel.ErrInvalidState)
		}
		s.updateEvidence(tx, row, func(e *models.EvidenceItem) { e.ApplyStatus(status, now) })
		return nil
	})
}

// ClaimEvidence marks up to req.Max live items in req.Statuses as owned by req.Owner.
func (s *Store) ClaimEvidence(ctx context.Context, req models.ClaimRequest) ([]*models.EvidenceItem, error) {
	var out []*models.EvidenceItem
	err := s.with(ctx, func(tx *txState) error {
		var eligible []*evidenceRow
		for _, row := range s.evidence {
			e := row.item
			if e.Deleted || row.claim.heldAt(req.Now) {
				continue
			}
			if !slices.Contains(req.Statuses, e.ProcessingStatus) || !req.Window.Contains(e.EvidenceDate) {
				continue
			}
			eligible = append(eligible, row)
		}
		sort.Slice(eligible, func(i, j int) bool {
			a, b := eligible[i].item, eligible[j].item
			if a.EvidenceDate.Equal(b.EvidenceDate) {
				return a.ID < b.ID
			}
			return a.EvidenceDate.Before(b.EvidenceDate)
		})
		if req.Max > 0 && len(eligible) > req.Max {
			eligible = eligible[:req.Max]
		}
		for _, row := range eligible {
			prev := row.claim
			row.claim = claim{owner: req.Owner, expires: req.ExpiresAt()}
			tx.remember(func() { row.claim = prev })
			out = append(out, row.item.Clone())
		}
		return nil
	})
	return out, err
}

func (s *Store) ReleaseEvidenceClaim(ctx context.Context, evidenceID id.EvidenceID, owner string) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.evidence[evidenceID]
		if !ok || row.claim.owner != owner {
			return nil
		}
		prev := row.claim
		row.claim = claim{}
		tx.remember(func() { row.claim = prev })
		return nil
	})
}

// TransitionEvidence moves the item from -> to, failing with ErrInvalidState
// when another writer got there first. from == to re-stamps UpdatedAt.
func (s *Store) TransitionEvidence(ctx context.Context, evidenceID id.EvidenceID, from, to models.EvidenceStatus, now time.Time) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.evidence[evidenceID]
		if !ok {
			return fmt.Errorf("evidence %s: %w", evidenceID, sentinel.ErrNotFound)
		}
		if row.item.ProcessingStatus != from {
			return fmt.Errorf("evidence %s is %s, expected %s: %w", evidenceID, row.item.ProcessingStatus, from, sentinel.ErrInvalidState)
		}
		s.updateEvidence(tx, row, func(e *models.EvidenceItem) { e.ApplyStatus(to, now) })
		return nil
	})
}

func (s *Store) SetEvidenceKeywords(ctx context.Context, evidenceID id.EvidenceID, keywords models.StringSet, now time.Time) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.evidence[evidenceID]
		if !ok {
			return fmt.Errorf("evidence %s: %w", evidenceID, sentinel.ErrNotFound)
		}
		s.updateEvidence(tx, row, func(e *models.EvidenceItem) {
			e.ExtractedKeywords = keywords.Clone()
			e.UpdatedAt = now
		})
		return nil
	})
}

// AddEvidencePromise set-unions promiseID into the item's back-references.
func (s *Store) AddEvidencePromise(ctx context.Context, evidenceID id.EvidenceID, promiseID id.PromiseID, now time.Time) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.evidence[evidenceID]
		if !ok {
			return fmt.Errorf("evidence %s: %w", evidenceID, sentinel.ErrNotFound)
		}
		s.updateEvidence(tx, row, func(e *models.EvidenceItem) { e.AttachPromise(promiseID, now) })
		return nil
	})
}

// UpdateEvidence writes the editable fields of e. Pipeline-owned fields are
// left as stored.
func (s *Store) UpdateEvidence(ctx context.Context, e *models.EvidenceItem) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.evidence[e.ID]
		if !ok {
			return fmt.Errorf("evidence %s: %w", e.ID, sentinel.ErrNotFound)
		}
		s.updateEvidence(tx, row, func(cur *models.EvidenceItem) {
			cur.Title = e.Title
			cur.Summary = e.Summary
			cur.EvidenceDate = e.EvidenceDate
			cur.SourceURL = e.SourceURL
			cur.ParliamentSession = e.ParliamentSession
			cur.Deleted = e.Deleted
			cur.UpdatedAt = e.UpdatedAt
		})
		return nil
	})
}

func (s *Store) updateEvidence(tx *txState, row *evidenceRow, mutate func(e *models.EvidenceItem)) {
	prev := row.item.Clone()
	mutate(row.item)
	tx.remember(func() { row.item = prev })
}
