package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	"promisetracker/pkg/platform/sentinel"
)

const linkColumns = `id, promise_id, evidence_id, link_status, jaccard, common_count, common_keywords,
	llm_likelihood, llm_explanation, created_at, reviewed_at, reviewer_notes`

// InsertLink stores l unless its (promise, evidence) pair already has a link
// in any status. It reports whether l was written.
func (s *Store) InsertLink(ctx context.Context, l *models.PotentialLink) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO potential_links (`+linkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (promise_id, evidence_id) DO NOTHING
	`, uuid.UUID(l.ID), l.PromiseID, l.EvidenceID, l.LinkStatus, l.KeywordOverlap.Jaccard,
		l.KeywordOverlap.CommonCount, stringArray(l.KeywordOverlap.CommonKeywords), l.LLMLikelihood,
		l.LLMExplanation, l.CreatedAt, l.ReviewedAt, l.ReviewerNotes)
	if isUniqueViolation(err) {
		return false, fmt.Errorf("link %s: %w", l.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return false, fmt.Errorf("insert link: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *Store) FindLink(ctx context.Context, linkID id.LinkID) (*models.PotentialLink, error) {
	return s.findLink(ctx, `SELECT `+linkColumns+` FROM potential_links WHERE id = $1`, linkID)
}

// LockLink reads the link with a row lock inside a transaction. Review reads
// the status it decides on through this call.
func (s *Store) LockLink(ctx context.Context, linkID id.LinkID) (*models.PotentialLink, error) {
	return s.findLink(ctx, forUpdate(ctx, `SELECT `+linkColumns+` FROM potential_links WHERE id = $1`), linkID)
}

func (s *Store) findLink(ctx context.Context, query string, linkID id.LinkID) (*models.PotentialLink, error) {
	l, err := scanLink(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(linkID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link %s: %w", linkID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find link: %w", err)
	}
	return l, nil
}

// ResolveLink writes the review fields of l, provided the stored link is
// still pending.
func (s *Store) ResolveLink(ctx context.Context, l *models.PotentialLink) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE potential_links
		SET link_status = $2, reviewed_at = $3, reviewer_notes = $4
		WHERE id = $1 AND link_status = 'pending_review'
	`, uuid.UUID(l.ID), l.LinkStatus, l.ReviewedAt, l.ReviewerNotes)
	if err != nil {
		return fmt.Errorf("resolve link: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.FindLink(ctx, l.ID); err != nil {
			return err
		}
		return fmt.Errorf("link %s already resolved: %w", l.ID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Store) ListLinksByEvidence(ctx context.Context, evidenceID id.EvidenceID) ([]*models.PotentialLink, error) {
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM potential_links WHERE evidence_id = $1 ORDER BY created_at, id
	`, evidenceID)
}

func (s *Store) ListLinksByStatus(ctx context.Context, status models.LinkStatus) ([]*models.PotentialLink, error) {
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM potential_links WHERE link_status = $1 ORDER BY created_at, id
	`, status)
}

func (s *Store) CountPendingLinks(ctx context.Context, evidenceID id.EvidenceID) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM potential_links WHERE evidence_id = $1 AND link_status = 'pending_review'
	`, evidenceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending links: %w", err)
	}
	return n, nil
}

// ListPendingLinks pages pending links in (created_at, id) order.
func (s *Store) ListPendingLinks(ctx context.Context, limit int, after *models.LinkCursor) ([]*models.PotentialLink, error) {
	if after == nil {
		return s.queryLinks(ctx, `
			SELECT `+linkColumns+` FROM potential_links
			WHERE link_status = 'pending_review'
			ORDER BY created_at, id
			LIMIT $1
		`, limitArg(limit))
	}
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM potential_links
		WHERE link_status = 'pending_review' AND (created_at, id) > ($1, $2)
		ORDER BY created_at, id
		LIMIT $3
	`, after.CreatedAt, uuid.UUID(after.ID), limitArg(limit))
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]*models.PotentialLink, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var out []*models.PotentialLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return out, nil
}

func scanLink(row scanner) (*models.PotentialLink, error) {
	var (
		l        models.PotentialLink
		linkID   uuid.UUID
		common   pq.StringArray
		reviewed sql.NullTime
	)
	if err := row.Scan(&linkID, &l.PromiseID, &l.EvidenceID, &l.LinkStatus, &l.KeywordOverlap.Jaccard,
		&l.KeywordOverlap.CommonCount, &common, &l.LLMLikelihood, &l.LLMExplanation, &l.CreatedAt,
		&reviewed, &l.ReviewerNotes); err != nil {
		return nil, err
	}
	l.ID = id.LinkID(linkID)
	l.KeywordOverlap.CommonKeywords = models.NewStringSet(common...)
	if reviewed.Valid {
		t := reviewed.Time
		l.ReviewedAt = &t
	}
	return &l, nil
}
