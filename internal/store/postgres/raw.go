package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/sentinel"
)

const ingestColumns = `raw_id, feed_type, published_at, status, evidence_id, attempts, last_error, updated_at`

// SaveRaw stores raw and, when rec is non-nil, opens its ingest record.
// It reports false without writing when the raw id already exists.
func (s *Store) SaveRaw(ctx context.Context, raw *models.RawDocument, rec *models.IngestRecord) (bool, error) {
	var created bool
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO raw_documents (id, feed_type, title, body, published_at, source_url, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, raw.ID, raw.FeedType, raw.Title, raw.Body, nullTime(raw.PublishedAt), raw.SourceURL, raw.IngestedAt)
		if err != nil {
			return fmt.Errorf("insert raw document: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil || n == 0 {
			return err
		}
		created = true
		if rec == nil {
			return nil
		}
		_, err = s.insertIngest(ctx, rec)
		return err
	})
	return created, err
}

func (s *Store) FindRaw(ctx context.Context, rawID id.RawID) (*models.RawDocument, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, feed_type, title, body, published_at, source_url, ingested_at
		FROM raw_documents WHERE id = $1
	`, rawID)
	raw, err := scanRaw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raw document %s: %w", rawID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find raw document: %w", err)
	}
	return raw, nil
}

func (s *Store) ListRawWithoutIngest(ctx context.Context) ([]*models.RawDocument, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT r.id, r.feed_type, r.title, r.body, r.published_at, r.source_url, r.ingested_at
		FROM raw_documents r
		LEFT JOIN ingest_queue q ON q.raw_id = r.id
		WHERE q.raw_id IS NULL
		ORDER BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list raw without ingest: %w", err)
	}
	defer rows.Close()

	var out []*models.RawDocument
	for rows.Next() {
		raw, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw document: %w", err)
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

func (s *Store) FindIngest(ctx context.Context, rawID id.RawID) (*models.IngestRecord, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+ingestColumns+` FROM ingest_queue WHERE raw_id = $1`, rawID)
	rec, err := scanIngest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingest record %s: %w", rawID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find ingest record: %w", err)
	}
	return rec, nil
}

// OpenIngest inserts rec unless the raw document already has an ingest record.
func (s *Store) OpenIngest(ctx context.Context, rec *models.IngestRecord) (bool, error) {
	if _, err := s.FindRaw(ctx, rec.RawID); err != nil {
		return false, err
	}
	return s.insertIngest(ctx, rec)
}

func (s *Store) insertIngest(ctx context.Context, rec *models.IngestRecord) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO ingest_queue (raw_id, feed_type, published_at, status, evidence_id, attempts, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (raw_id) DO NOTHING
	`, rec.RawID, rec.FeedType, nullTime(rec.PublishedAt), rec.Status, nullString(string(rec.EvidenceID)),
		rec.Attempts, rec.LastError, rec.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert ingest record: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

// ClaimIngest marks up to req.Max records needing materialization as owned by
// req.Owner. SKIP LOCKED keeps concurrent claimers off each other's rows.
func (s *Store) ClaimIngest(ctx context.Context, req models.ClaimRequest) ([]*models.IngestRecord, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		UPDATE ingest_queue
		SET claimed_by = $1, claim_expires_at = $2
		WHERE raw_id IN (
			SELECT raw_id FROM ingest_queue
			WHERE status IN ('pending_evidence_creation', 'error_materialization')
			  AND (claimed_by IS NULL OR claim_expires_at <= $3)
			  AND (published_at IS NULL
			       OR (($4::timestamptz IS NULL OR published_at >= $4)
			           AND ($5::timestamptz IS NULL OR published_at < $5)))
			ORDER BY published_at NULLS FIRST, raw_id
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+ingestColumns,
		req.Owner, req.ExpiresAt(), req.Now,
		nullTime(req.Window.Start), nullTime(req.Window.End), limitArg(req.Max))
	if err != nil {
		return nil, fmt.Errorf("claim ingest records: %w", err)
	}
	defer rows.Close()

	var out []*models.IngestRecord
	for rows.Next() {
		rec, err := scanIngest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingest record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed ingest records: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].RawID < out[j].RawID
		}
		return out[i].PublishedAt.Before(out[j].PublishedAt)
	})
	return out, nil
}

func (s *Store) ReleaseIngestClaim(ctx context.Context, rawID id.RawID, owner string) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE ingest_queue SET claimed_by = NULL, claim_expires_at = NULL
		WHERE raw_id = $1 AND claimed_by = $2
	`, rawID, owner)
	if err != nil {
		return fmt.Errorf("release ingest claim: %w", err)
	}
	return nil
}

// TransitionIngest applies out only when the record is still in from.
func (s *Store) TransitionIngest(ctx context.Context, rawID id.RawID, from models.IngestStatus, out models.IngestOutcome, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE ingest_queue
		SET status = $3,
		    evidence_id = COALESCE($4, evidence_id),
		    last_error = $5,
		    attempts = attempts + 1,
		    updated_at = $6
		WHERE raw_id = $1 AND status = $2
	`, rawID, from, out.Status, nullString(string(out.EvidenceID)), out.Error, now)
	if err != nil {
		return fmt.Errorf("transition ingest record: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.FindIngest(ctx, rawID); err != nil {
			return err
		}
		return fmt.Errorf("ingest record %s not in %s: %w", rawID, from, sentinel.ErrInvalidState)
	}
	return nil
}

func limitArg(max int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(max), Valid: max > 0}
}

func scanRaw(row scanner) (*models.RawDocument, error) {
	var (
		raw       models.RawDocument
		published sql.NullTime
	)
	if err := row.Scan(&raw.ID, &raw.FeedType, &raw.Title, &raw.Body, &published, &raw.SourceURL, &raw.IngestedAt); err != nil {
		return nil, err
	}
	raw.PublishedAt = published.Time
	return &raw, nil
}

func scanIngest(row scanner) (*models.IngestRecord, error) {
	var (
		rec        models.IngestRecord
		published  sql.NullTime
		evidenceID sql.NullString
	)
	if err := row.Scan(&rec.RawID, &rec.FeedType, &published, &rec.Status, &evidenceID,
		&rec.Attempts, &rec.LastError, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.PublishedAt = published.Time
	rec.EvidenceID = id.EvidenceID(evidenceID.String)
	return &rec, nil
}
