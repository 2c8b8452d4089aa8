package review

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page is one slice of the pending-review queue.
type Page struct {
	Links      []*models.PotentialLink
	NextCursor string
}

// ListPendingLinks pages through pending links oldest first. The cursor is
// opaque to callers; an empty NextCursor means the queue is exhausted.
func (s *Service) ListPendingLinks(ctx context.Context, limit int, cursor string) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	links, err := s.store.ListPendingLinks(ctx, limit+1, after)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending links")
	}
	page := &Page{Links: links}
	if len(links) > limit {
		page.Links = links[:limit]
		last := page.Links[limit-1]
		page.NextCursor = EncodeCursor(models.LinkCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if page.Links == nil {
		page.Links = []*models.PotentialLink{}
	}
	return page, nil
}

func EncodeCursor(c models.LinkCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor. Empty means the
// first page.
func DecodeCursor(cursor string) (*models.LinkCursor, error) {
	if cursor == "" {
		return nil, nil
	}
	invalid := dErrors.New(dErrors.CodeInvalidInput, "invalid cursor")
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, invalid
	}
	ts, linkID, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, invalid
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, invalid
	}
	lid, err := id.ParseLinkID(linkID)
	if err != nil {
		return nil, invalid
	}
	return &models.LinkCursor{CreatedAt: createdAt, ID: lid}, nil
}
