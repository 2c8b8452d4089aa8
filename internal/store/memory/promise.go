package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/sentinel"
)

// SavePromise inserts p or replaces its editable fields. The linked set is
// only written on insert.
func (s *Store) SavePromise(ctx context.Context, p *models.Promise) error {
	return s.with(ctx, func(tx *txState) error {
		prev, existed := s.promises[p.ID]
		next := p.Clone()
		if existed {
			next.LinkedEvidenceIDs = prev.LinkedEvidenceIDs.Clone()
		}
		s.promises[p.ID] = next
		tx.remember(func() {
			if existed {
				s.promises[p.ID] = prev
				return
			}
			delete(s.promises, p.ID)
		})
		return nil
	})
}

func (s *Store) FindPromise(ctx context.Context, promiseID id.PromiseID) (*models.Promise, error) {
	var out *models.Promise
	err := s.with(ctx, func(_ *txState) error {
		p, ok := s.promises[promiseID]
		if !ok {
			return fmt.Errorf("promise %s: %w", promiseID, sentinel.ErrNotFound)
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (s *Store) LockPromise(ctx context.Context, promiseID id.PromiseID) (*models.Promise, error) {
	return s.FindPromise(ctx, promiseID)
}

func (s *Store) ListPromises(ctx context.Context) ([]*models.Promise, error) {
	var out []*models.Promise
	err := s.with(ctx, func(_ *txState) error {
		for _, p := range s.promises {
			out = append(out, p.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) ListCandidatePromises(ctx context.Context, q models.CandidateQuery) ([]*models.Promise, error) {
	all, err := s.ListPromises(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if q.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// AddPromiseEvidence set-unions evidenceID into the promise's linked set.
func (s *Store) AddPromiseEvidence(ctx context.Context, promiseID id.PromiseID, evidenceID id.EvidenceID, now time.Time) error {
	return s.with(ctx, func(tx *txState) error {
		p, ok := s.promises[promiseID]
		if !ok {
			return fmt.Errorf("promise %s: %w", promiseID, sentinel.ErrNotFound)
		}
		prev := p.Clone()
		if p.AttachEvidence(evidenceID, now) {
			tx.remember(func() { s.promises[promiseID] = prev })
		}
		return nil
	})
}

// UpdatePromise writes the editable fields of p.
func (s *Store) UpdatePromise(ctx context.Context, p *models.Promise) error {
	return s.with(ctx, func(tx *txState) error {
		cur, ok := s.promises[p.ID]
		if !ok {
			return fmt.Errorf("promise %s: %w", p.ID, sentinel.ErrNotFound)
		}
		prev := cur.Clone()
		cur.Text = p.Text
		cur.Department = p.Department
		cur.ParliamentSession = p.ParliamentSession
		cur.DateIssued = p.DateIssued
		cur.Status = p.Status
		cur.UpdatedAt = p.UpdatedAt
		tx.remember(func() { s.promises[p.ID] = prev })
		return nil
	})
}
