package admin

import (
	"time"

	"promisetracker/internal/batch"
	"promisetracker/internal/models"
)

type PromiseResponse struct {
	ID                string    `json:"id"`
	Text              string    `json:"text"`
	Department        string    `json:"department"`
	ParliamentSession string    `json:"parliament_session,omitempty"`
	DateIssued        time.Time `json:"date_issued"`
	Status            string    `json:"status"`
	LinkedEvidenceIDs []string  `json:"linked_evidence_ids"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type EvidenceResponse struct {
	ID                string    `json:"id"`
	SourceKey         string    `json:"source_key"`
	SourceType        string    `json:"source_type"`
	Title             string    `json:"title"`
	Summary           string    `json:"summary"`
	EvidenceDate      time.Time `json:"evidence_date"`
	SourceURL         string    `json:"source_url,omitempty"`
	ParliamentSession string    `json:"parliament_session,omitempty"`
	PromiseIDs        []string  `json:"promise_ids"`
	ProcessingStatus  string    `json:"processing_status"`
	Deleted           bool      `json:"deleted"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BatchResponse echoes the request alongside its tally.
type BatchResponse struct {
	Stage string      `json:"stage"`
	Tally batch.Tally `json:"tally"`
}

func FromPromise(p *models.Promise) *PromiseResponse {
	return &PromiseResponse{
		ID:                p.ID.String(),
		Text:              p.Text,
		Department:        p.Department,
		ParliamentSession: p.ParliamentSession,
		DateIssued:        p.DateIssued,
		Status:            string(p.Status),
		LinkedEvidenceIDs: nonNil(p.LinkedEvidenceIDs),
		UpdatedAt:         p.UpdatedAt,
	}
}

func FromEvidence(e *models.EvidenceItem) *EvidenceResponse {
	return &EvidenceResponse{
		ID:                e.ID.String(),
		SourceKey:         e.SourceKey,
		SourceType:        string(e.SourceType),
		Title:             e.Title,
		Summary:           e.Summary,
		EvidenceDate:      e.EvidenceDate,
		SourceURL:         e.SourceURL,
		ParliamentSession: e.ParliamentSession,
		PromiseIDs:        nonNil(e.PromiseIDs),
		ProcessingStatus:  string(e.ProcessingStatus),
		Deleted:           e.Deleted,
		UpdatedAt:         e.UpdatedAt,
	}
}

func nonNil(s models.StringSet) []string {
	if s == nil {
		return []string{}
	}
	return []string(s)
}
