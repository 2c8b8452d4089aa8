package models

import (
	"time"

	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
)

// EvidenceItem is a government document derived from exactly one raw document.
//
// Invariants:
//   - SourceKey is unique across all items
//   - ProcessingStatus is always a defined value once materialized
//   - PromiseIDs only grows, and only through a confirmed link
//   - Items are never removed; Deleted hides them from queries
type EvidenceItem struct {
	ID                id.EvidenceID  `json:"id"`
	SourceKey         string         `json:"source_key"`
	SourceType        SourceType     `json:"source_type"`
	Title             string         `json:"title"`
	Summary           string         `json:"summary"`
	EvidenceDate      time.Time      `json:"evidence_date"`
	SourceURL         string         `json:"source_url,omitempty"`
	ParliamentSession string         `json:"parliament_session,omitempty"`
	ExtractedKeywords StringSet      `json:"extracted_keywords"`
	PromiseIDs        StringSet      `json:"promise_ids"`
	ProcessingStatus  EvidenceStatus `json:"processing_status"`
	Deleted           bool           `json:"deleted"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// QueryText is the text scored against promises.
func (e *EvidenceItem) QueryText() string {
	if e.Summary == "" {
		return e.Title
	}
	return e.Title + "\n" + e.Summary
}

// CanTransitionTo returns an invariant error when next is not reachable.
func (e *EvidenceItem) CanTransitionTo(next EvidenceStatus) error {
	if !e.ProcessingStatus.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"evidence cannot move from "+string(e.ProcessingStatus)+" to "+string(next))
	}
	return nil
}

func (e *EvidenceItem) ApplyStatus(next EvidenceStatus, now time.Time) {
	e.ProcessingStatus = next
	e.UpdatedAt = now
}

// AttachPromise adds promiseID to the back-references and reports whether it
// was new.
func (e *EvidenceItem) AttachPromise(promiseID id.PromiseID, now time.Time) bool {
	next, added := e.PromiseIDs.Add(string(promiseID))
	if added {
		e.PromiseIDs = next
		e.UpdatedAt = now
	}
	return added
}

func (e *EvidenceItem) HasPromises() bool {
	return len(e.PromiseIDs) > 0
}

// Clone returns a deep copy.
func (e *EvidenceItem) Clone() *EvidenceItem {
	if e == nil {
		return nil
	}
	c := *e
	c.ExtractedKeywords = e.ExtractedKeywords.Clone()
	c.PromiseIDs = e.PromiseIDs.Clone()
	return &c
}
