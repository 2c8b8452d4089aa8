package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/sentinel"
)

const evidenceColumns = `id, source_key, source_type, title, summary, evidence_date, source_url,
	parliament_session, extracted_keywords, promise_ids, processing_status, deleted, created_at, updated_at`

// CreateEvidence inserts e. The source key unique constraint decides races.
func (s *Store) CreateEvidence(ctx context.Context, e *models.EvidenceItem) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO evidence_items (`+evidenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.SourceKey, e.SourceType, e.Title, e.Summary, e.EvidenceDate, e.SourceURL,
		e.ParliamentSession, stringArray(e.ExtractedKeywords), stringArray(e.PromiseIDs),
		nullString(string(e.ProcessingStatus)), e.Deleted, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("evidence %s: %w", e.SourceKey, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func (s *Store) FindEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error) {
	return s.findEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence_items WHERE id = $1`, evidenceID)
}

// LockEvidence reads the item, taking a row lock inside a transaction.
func (s *Store) LockEvidence(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceItem, error) {
	return s.findEvidence(ctx, forUpdate(ctx, `SELECT `+evidenceColumns+` FROM evidence_items WHERE id = $1`), evidenceID)
}

func (s *Store) FindEvidenceBySourceKey(ctx context.Context, sourceKey string) (*models.EvidenceItem, error) {
	return s.findEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence_items WHERE source_key = $1`, sourceKey)
}

func (s *Store) findEvidence(ctx context.Context, query string, arg any) (*models.EvidenceItem, error) {
	e, err := scanEvidence(s.execer(ctx).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evidence %v: %w", arg, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find evidence: %w", err)
	}
	return e, nil
}

func (s *Store) ListEvidence(ctx context.Context) ([]*models.EvidenceItem, error) {
	return s.queryEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence_items ORDER BY id`)
}

// ListEvidenceWithoutStatus returns legacy items whose status is missing or
// not a defined value.
func (s *Store) ListEvidenceWithoutStatus(ctx context.Context) ([]*models.EvidenceItem, error) {
	return s.queryEvidence(ctx, `
		SELECT `+evidenceColumns+` FROM evidence_items
		WHERE processing_status IS NULL OR NOT (processing_status = ANY($1))
		ORDER BY id
	`, pq.Array(evidenceStatuses()))
}

func (s *Store) StampEvidenceStatus(ctx context.Context, evidenceID id.EvidenceID, status models.EvidenceStatus, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE evidence_items SET processing_status = $2, updated_at = $3
		WHERE id = $1 AND (processing_status IS NULL OR NOT (processing_status = ANY($4)))
	`, evidenceID, status, now, pq.Array(evidenceStatuses()))
	if err != nil {
		return fmt.Errorf("stamp evidence status: %w", err)
	}
	return s.expectEvidenceRow(ctx, res, evidenceID, "already has a status")
}

// ClaimEvidence marks up to req.Max live items in req.Statuses as owned by req.Owner.
func (s *Store) ClaimEvidence(ctx context.Context, req models.ClaimRequest) ([]*models.EvidenceItem, error) {
	statuses := make([]string, len(req.Statuses))
	for i, st := range req.Statuses {
		statuses[i] = string(st)
	}
	items, err := s.queryEvidence(ctx, `
		UPDATE evidence_items
		SET claimed_by = $1, claim_expires_at = $2
		WHERE id IN (
			SELECT id FROM evidence_items
			WHERE deleted = FALSE
			  AND processing_status = ANY($3)
			  AND (claimed_by IS NULL OR claim_expires_at <= $4)
			  AND ($5::timestamptz IS NULL OR evidence_date >= $5)
			  AND ($6::timestamptz IS NULL OR evidence_date < $6)
			ORDER BY evidence_date, id
			LIMIT $7
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+evidenceColumns,
		req.Owner, req.ExpiresAt(), pq.Array(statuses), req.Now,
		nullTime(req.Window.Start), nullTime(req.Window.End), limitArg(req.Max))
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].EvidenceDate.Equal(items[j].EvidenceDate) {
			return items[i].ID < items[j].ID
		}
		return items[i].EvidenceDate.Before(items[j].EvidenceDate)
	})
	return items, nil
}

func (s *Store) ReleaseEvidenceClaim(ctx context.Context, evidenceID id.EvidenceID, owner string) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE evidence_items SET claimed_by = NULL, claim_expires_at = NULL
		WHERE id = $1 AND claimed_by = $2
	`, evidenceID, owner)
	if err != nil {
		return fmt.Errorf("release evidence claim: %w", err)
	}
	return nil
}

// TransitionEvidence moves the item from -> to, failing with ErrInvalidState
// when another writer got there first. The update takes the row lock.
func (s *Store) TransitionEvidence(ctx context.Context, evidenceID id.EvidenceID, from, to models.EvidenceStatus, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE evidence_items SET processing_status = $3, updated_at = $4
		WHERE id = $1 AND processing_status = $2
	`, evidenceID, from, to, now)
	if err != nil {
		return fmt.Errorf("transition evidence: %w", err)
	}
	return s.expectEvidenceRow(ctx, res, evidenceID, "not in "+string(from))
}

func (s *Store) SetEvidenceKeywords(ctx context.Context, evidenceID id.EvidenceID, keywords models.StringSet, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE evidence_items SET extracted_keywords = $2, updated_at = $3 WHERE id = $1
	`, evidenceID, stringArray(keywords), now)
	if err != nil {
		return fmt.Errorf("set evidence keywords: %w", err)
	}
	return s.expectEvidenceRow(ctx, res, evidenceID, "")
}

// AddEvidencePromise set-unions promiseID into the item's back-references.
func (s *Store) AddEvidencePromise(ctx context.Context, evidenceID id.EvidenceID, promiseID id.PromiseID, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE evidence_items
		SET promise_ids = CASE WHEN $2 = ANY(promise_ids) THEN promise_ids
		                       ELSE array_append(promise_ids, $2) END,
		    updated_at = $3
		WHERE id = $1
	`, evidenceID, string(promiseID), now)
	if err != nil {
		return fmt.Errorf("add evidence promise: %w", err)
	}
	return s.expectEvidenceRow(ctx, res, evidenceID, "")
}

// UpdateEvidence writes the editable fields of e.
func (s *Store) UpdateEvidence(ctx context.Context, e *models.EvidenceItem) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE evidence_items
		SET title = $2, summary = $3, evidence_date = $4, source_url = $5,
		    parliament_session = $6, deleted = $7, updated_at = $8
		WHERE id = $1
	`, e.ID, e.Title, e.Summary, e.EvidenceDate, e.SourceURL, e.ParliamentSession, e.Deleted, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	return s.expectEvidenceRow(ctx, res, e.ID, "")
}

// expectEvidenceRow turns a zero-row update into ErrNotFound or, when the row
// exists, ErrInvalidState.
func (s *Store) expectEvidenceRow(ctx context.Context, res sql.Result, evidenceID id.EvidenceID, state string) error {
	n, err := rowsAffected(res)
	if err != nil || n > 0 {
		return err
	}
	if _, err := s.FindEvidence(ctx, evidenceID); err != nil {
		return err
	}
	return fmt.Errorf("evidence %s %s: %w", evidenceID, state, sentinel.ErrInvalidState)
}

func (s *Store) queryEvidence(ctx context.Context, query string, args ...any) ([]*models.EvidenceItem, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var out []*models.EvidenceItem
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return out, nil
}

func scanEvidence(row scanner) (*models.EvidenceItem, error) {
	var (
		e        models.EvidenceItem
		keywords pq.StringArray
		promises pq.StringArray
		status   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.SourceKey, &e.SourceType, &e.Title, &e.Summary, &e.EvidenceDate,
		&e.SourceURL, &e.ParliamentSession, &keywords, &promises, &status, &e.Deleted,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ExtractedKeywords = models.NewStringSet(keywords...)
	e.PromiseIDs = models.NewStringSet(promises...)
	e.ProcessingStatus = models.EvidenceStatus(status.String)
	return &e, nil
}

func evidenceStatuses() []string {
	return []string{
		string(models.EvidenceStatusPendingLinkGeneration),
		string(models.EvidenceStatusPendingReview),
		string(models.EvidenceStatusLinked),
		string(models.EvidenceStatusNoCandidatesFound),
		string(models.EvidenceStatusErrorDataIntegrity),
	}
}
