package models

import (
	"net/url"
	"strings"
	"time"

	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
)

// RawDocument is a connector-normalized payload. The pipeline never mutates it.
type RawDocument struct {
	ID          id.RawID  `json:"id"`
	FeedType    FeedType  `json:"feed_type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	SourceURL   string    `json:"source_url"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// SourceKey is the feed-assigned identity an evidence item is deduplicated on.
func (r *RawDocument) SourceKey() string {
	return SourceKey(r.FeedType, r.ID)
}

func SourceKey(feed FeedType, rawID id.RawID) string {
	return string(feed) + ":" + string(rawID)
}

// Validate reports the first reason the payload cannot become evidence.
func (r *RawDocument) Validate() error {
	if strings.TrimSpace(string(r.ID)) == "" {
		return dErrors.New(dErrors.CodeValidation, "raw document id is required")
	}
	if !r.FeedType.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown feed type: "+string(r.FeedType))
	}
	if strings.TrimSpace(r.Title) == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if r.PublishedAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "published date is required")
	}
	if r.SourceURL != "" {
		u, err := url.Parse(r.SourceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return dErrors.New(dErrors.CodeValidation, "source url is not an absolute url")
		}
	}
	return nil
}

// IngestRecord tracks a raw document through materialization.
type IngestRecord struct {
	RawID       id.RawID      `json:"raw_id"`
	FeedType    FeedType      `json:"feed_type"`
	PublishedAt time.Time     `json:"published_at"`
	Status      IngestStatus  `json:"status"`
	EvidenceID  id.EvidenceID `json:"evidence_id,omitempty"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// InWindow reports whether a materialize run over w should pick the row up.
// An undated row cannot be placed in any window, so every run sees it and
// the materializer keeps recording the defect.
func (r *IngestRecord) InWindow(w Window) bool {
	return r.PublishedAt.IsZero() || w.Contains(r.PublishedAt)
}

// NewIngestRecord opens the ingest row for a freshly stored raw document.
func NewIngestRecord(raw *RawDocument, now time.Time) *IngestRecord {
	return &IngestRecord{
		RawID:       raw.ID,
		FeedType:    raw.FeedType,
		PublishedAt: raw.PublishedAt,
		Status:      IngestStatusPendingEvidenceCreation,
		UpdatedAt:   now,
	}
}

// IngestOutcome is the write a materialization attempt applies to its record.
type IngestOutcome struct {
	Status     IngestStatus
	EvidenceID id.EvidenceID
	Error      string
}

// Apply stamps the outcome. Call CanTransitionTo on the current status first.
func (r *IngestRecord) Apply(out IngestOutcome, now time.Time) {
	r.Status = out.Status
	r.Attempts++
	r.LastError = out.Error
	if out.EvidenceID != "" {
		r.EvidenceID = out.EvidenceID
	}
	r.UpdatedAt = now
}
