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

// SaveRaw stores raw and, when rec is non-nil, opens its ingest record.
// It reports false without writing when the raw id already exists.
func (s *Store) SaveRaw(ctx context.Context, raw *models.RawDocument, rec *models.IngestRecord) (bool, error) {
	created := false
	err := s.with(ctx, func(tx *txState) error {
		if _, ok := s.raw[raw.ID]; ok {
			return nil
		}
		c := *raw
		s.raw[raw.ID] = &c
		tx.remember(func() { delete(s.raw, raw.ID) })
		if rec != nil {
			s.putIngest(tx, rec)
		}
		created = true
		return nil
	})
	return created, err
}

func (s *Store) FindRaw(ctx context.Context, rawID id.RawID) (*models.RawDocument, error) {
	var out *models.RawDocument
	err := s.with(ctx, func(_ *txState) error {
		raw, ok := s.raw[rawID]
		if !ok {
			return fmt.Errorf("raw document %s: %w", rawID, sentinel.ErrNotFound)
		}
		c := *raw
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) FindIngest(ctx context.Context, rawID id.RawID) (*models.IngestRecord, error) {
	var out *models.IngestRecord
	err := s.with(ctx, func(_ *txState) error {
		row, ok := s.ingest[rawID]
		if !ok {
			return fmt.Errorf("ingest record %s: %w", rawID, sentinel.ErrNotFound)
		}
		c := *row.rec
		out = &c
		return nil
	})
	return out, err
}

// OpenIngest inserts rec unless the raw document already has an ingest record.
func (s *Store) OpenIngest(ctx context.Context, rec *models.IngestRecord) (bool, error) {
	opened := false
	err := s.with(ctx, func(tx *txState) error {
		if _, ok := s.raw[rec.RawID]; !ok {
			return fmt.Errorf("raw document %s: %w", rec.RawID, sentinel.ErrNotFound)
		}
		if _, ok := s.ingest[rec.RawID]; ok {
			return nil
		}
		s.putIngest(tx, rec)
		opened = true
		return nil
	})
	return opened, err
}

func (s *Store) putIngest(tx *txState, rec *models.IngestRecord) {
	c := *rec
	s.ingest[rec.RawID] = &ingestRow{rec: &c}
	tx.remember(func() { delete(s.ingest, rec.RawID) })
}

// ListRawWithoutIngest returns raw documents that predate the ingest ledger.
func (s *Store) ListRawWithoutIngest(ctx context.Context) ([]*models.RawDocument, error) {
	var out []*models.RawDocument
	err := s.with(ctx, func(_ *txState) error {
		for rawID, raw := range s.raw {
			if _, ok := s.ingest[rawID]; ok {
				continue
			}
			c := *raw
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// ClaimIngest marks up to req.Max records needing materialization as owned by
// req.Owner. Records held by a live claim of another owner are skipped.
func (s *Store) ClaimIngest(ctx context.Context, req models.ClaimRequest) ([]*models.IngestRecord, error) {
	var out []*models.IngestRecord
	err := s.with(ctx, func(tx *txState) error {
		var eligible []*ingestRow
		for _, row := range s.ingest {
			if !row.rec.Status.NeedsMaterialization() || row.claim.heldAt(req.Now) {
				continue
			}
			if !row.rec.InWindow(req.Window) {
				continue
			}
			eligible = append(eligible, row)
		}
		sort.Slice(eligible, func(i, j int) bool {
			a, b := eligible[i].rec, eligible[j].rec
			if a.PublishedAt.Equal(b.PublishedAt) {
				return a.RawID < b.RawID
			}
			return a.PublishedAt.Before(b.PublishedAt)
		})
		if req.Max > 0 && len(eligible) > req.Max {
			eligible = eligible[:req.Max]
		}
		for _, row := range eligible {
			prev := row.claim
			row.claim = claim{owner: req.Owner, expires: req.ExpiresAt()}
			tx.remember(func() { row.claim = prev })
			c := *row.rec
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

func (s *Store) ReleaseIngestClaim(ctx context.Context, rawID id.RawID, owner string) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.ingest[rawID]
		if !ok || row.claim.owner != owner {
			return nil
		}
		prev := row.claim
		row.claim = claim{}
		tx.remember(func() { row.claim = prev })
		return nil
	})
}

// TransitionIngest applies out only when the record is still in from.
func (s *Store) TransitionIngest(ctx context.Context, rawID id.RawID, from models.IngestStatus, out models.IngestOutcome, now time.Time) error {
	return s.with(ctx, func(tx *txState) error {
		row, ok := s.ingest[rawID]
		if !ok {
			return fmt.Errorf("ingest record %s: %w", rawID, sentinel.ErrNotFound)
		}
		if row.rec.Status != from {
			return fmt.Errorf("ingest record %s is %s: %w", rawID, row.rec.Status, sentinel.ErrInvalidState)
		}
		prev := *row.rec
		row.rec.Apply(out, now)
		tx.remember(func() { *row.rec = prev })
		return nil
	})
}
