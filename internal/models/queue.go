package models

import (
	"time"

	"github.com/google/uuid"

	id "promisetracker/pkg/domain"
)

// Window bounds a batch by date. Start is inclusive, End exclusive; a zero
// bound is open.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// ClaimRequest asks the work queue for up to Max unclaimed items in Window.
// A claim marks ownership until Now+Lease without touching the item's status.
type ClaimRequest struct {
	Window Window
	Max    int
	Owner  string
	Lease  time.Duration
	Now    time.Time
	// Statuses restricts evidence claims; ignored for ingest claims.
	Statuses []EvidenceStatus
}

func (c ClaimRequest) ExpiresAt() time.Time {
	return c.Now.Add(c.Lease)
}

// CandidateQuery selects promises to score against one evidence item.
type CandidateQuery struct {
	Session string
	// Around and Radius scope by DateIssued; a zero Radius disables the window.
	Around time.Time
	Radius time.Duration
}

func (q CandidateQuery) Matches(p *Promise) bool {
	if !p.IsActive() {
		return false
	}
	if q.Session != "" && p.ParliamentSession != q.Session {
		return false
	}
	if q.Radius > 0 && !q.Around.IsZero() && !p.DateIssued.IsZero() {
		if p.DateIssued.Before(q.Around.Add(-q.Radius)) || p.DateIssued.After(q.Around.Add(q.Radius)) {
			return false
		}
	}
	return true
}

// LinkCursor is the keyset position of a pending-links page.
type LinkCursor struct {
	CreatedAt time.Time
	ID        id.LinkID
}

// After reports whether l sorts strictly after the cursor.
func (c LinkCursor) After(l *PotentialLink) bool {
	if l.CreatedAt.Equal(c.CreatedAt) {
		return l.ID.String() > c.ID.String()
	}
	return l.CreatedAt.After(c.CreatedAt)
}

// OutboxEntry is an event written in the same transaction as the state change
// it describes, then published asynchronously.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}
