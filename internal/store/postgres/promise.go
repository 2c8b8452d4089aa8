package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/sentinel"
)

const promiseColumns = `id, text, department, parliament_session, date_issued, status, linked_evidence_ids, updated_at`

// SavePromise inserts p or replaces its editable fields. The linked set is
// only written on insert.
func (s *Store) SavePromise(ctx context.Context, p *models.Promise) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO promises (`+promiseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			department = EXCLUDED.department,
			parliament_session = EXCLUDED.parliament_session,
			date_issued = EXCLUDED.date_issued,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.Text, p.Department, p.ParliamentSession, nullTime(p.DateIssued), p.Status,
		stringArray(p.LinkedEvidenceIDs), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save promise: %w", err)
	}
	return nil
}

func (s *Store) FindPromise(ctx context.Context, promiseID id.PromiseID) (*models.Promise, error) {
	return s.findPromise(ctx, `SELECT `+promiseColumns+` FROM promises WHERE id = $1`, promiseID)
}

// LockPromise reads the promise, taking a row lock inside a transaction.
func (s *Store) LockPromise(ctx context.Context, promiseID id.PromiseID) (*models.Promise, error) {
	return s.findPromise(ctx, forUpdate(ctx, `SELECT `+promiseColumns+` FROM promises WHERE id = $1`), promiseID)
}

func (s *Store) findPromise(ctx context.Context, query string, promiseID id.PromiseID) (*models.Promise, error) {
	p, err := scanPromise(s.execer(ctx).QueryRowContext(ctx, query, promiseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("promise %s: %w", promiseID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find promise: %w", err)
	}
	return p, nil
}

func (s *Store) ListPromises(ctx context.Context) ([]*models.Promise, error) {
	return s.queryPromises(ctx, `SELECT `+promiseColumns+` FROM promises ORDER BY id`)
}

func (s *Store) ListCandidatePromises(ctx context.Context, q models.CandidateQuery) ([]*models.Promise, error) {
	var from, to sql.NullTime
	if q.Radius > 0 && !q.Around.IsZero() {
		from = nullTime(q.Around.Add(-q.Radius))
		to = nullTime(q.Around.Add(q.Radius))
	}
	return s.queryPromises(ctx, `
		SELECT `+promiseColumns+` FROM promises
		WHERE status = 'active'
		  AND ($1 = '' OR parliament_session = $1)
		  AND ($2::timestamptz IS NULL OR date_issued IS NULL OR date_issued >= $2)
		  AND ($3::timestamptz IS NULL OR date_issued IS NULL OR date_issued <= $3)
		ORDER BY id
	`, q.Session, from, to)
}

// AddPromiseEvidence set-unions evidenceID into the promise's linked set.
func (s *Store) AddPromiseEvidence(ctx context.Context, promiseID id.PromiseID, evidenceID id.EvidenceID, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE promises
		SET linked_evidence_ids = CASE WHEN $2 = ANY(linked_evidence_ids) THEN linked_evidence_ids
		                               ELSE array_append(linked_evidence_ids, $2) END,
		    updated_at = $3
		WHERE id = $1
	`, promiseID, string(evidenceID), now)
	if err != nil {
		return fmt.Errorf("add promise evidence: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("promise %s: %w", promiseID, sentinel.ErrNotFound)
	}
	return nil
}

// UpdatePromise writes the editable fields of p.
func (s *Store) UpdatePromise(ctx context.Context, p *models.Promise) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE promises
		SET text = $2, department = $3, parliament_session = $4, date_issued = $5, status = $6, updated_at = $7
		WHERE id = $1
	`, p.ID, p.Text, p.Department, p.ParliamentSession, nullTime(p.DateIssued), p.Status, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update promise: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("promise %s: %w", p.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) queryPromises(ctx context.Context, query string, args ...any) ([]*models.Promise, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query promises: %w", err)
	}
	defer rows.Close()

	var out []*models.Promise
	for rows.Next() {
		p, err := scanPromise(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promise: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promises: %w", err)
	}
	return out, nil
}

func scanPromise(row scanner) (*models.Promise, error) {
	var (
		p      models.Promise
		issued sql.NullTime
		linked pq.StringArray
	)
	if err := row.Scan(&p.ID, &p.Text, &p.Department, &p.ParliamentSession, &issued, &p.Status,
		&linked, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DateIssued = issued.Time
	p.LinkedEvidenceIDs = models.NewStringSet(linked...)
	return &p, nil
}
