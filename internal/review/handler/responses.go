package handler

import (
	"time"

	"promisetracker/internal/models"
	"promisetracker/internal/review"
)

// LinkResponse is the wire form of a potential link.
type LinkResponse struct {
	ID             string                `json:"id"`
	PromiseID      string                `json:"promise_id"`
	EvidenceID     string                `json:"evidence_id"`
	LinkStatus     string                `json:"link_status"`
	KeywordOverlap models.KeywordOverlap `json:"keyword_overlap_score"`
	LLMLikelihood  string                `json:"llm_likelihood_score"`
	LLMExplanation string                `json:"llm_explanation"`
	CreatedAt      time.Time             `json:"created_at"`
	ReviewedAt     *time.Time            `json:"reviewed_at,omitempty"`
	ReviewerNotes  string                `json:"reviewer_notes,omitempty"`
}

type DecisionResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Link    *LinkResponse `json:"link,omitempty"`
}

type PendingResponse struct {
	Links      []*LinkResponse `json:"links"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func FromLink(l *models.PotentialLink) *LinkResponse {
	if l == nil {
		return nil
	}
	return &LinkResponse{
		ID:             l.ID.String(),
		PromiseID:      l.PromiseID.String(),
		EvidenceID:     l.EvidenceID.String(),
		LinkStatus:     string(l.LinkStatus),
		KeywordOverlap: l.KeywordOverlap,
		LLMLikelihood:  string(l.LLMLikelihood),
		LLMExplanation: l.LLMExplanation,
		CreatedAt:      l.CreatedAt,
		ReviewedAt:     l.ReviewedAt,
		ReviewerNotes:  l.ReviewerNotes,
	}
}

func FromResult(r *review.Result) *DecisionResponse {
	return &DecisionResponse{
		Status:  string(r.Status),
		Message: r.Message,
		Link:    FromLink(r.Link),
	}
}

func FromPage(p *review.Page) *PendingResponse {
	out := &PendingResponse{Links: make([]*LinkResponse, 0, len(p.Links)), NextCursor: p.NextCursor}
	for _, l := range p.Links {
		out.Links = append(out.Links, FromLink(l))
	}
	return out
}
