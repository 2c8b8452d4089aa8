package models

import (
	"time"

	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
)

// KeywordOverlap is the lexical score of a (promise, evidence) pair.
type KeywordOverlap struct {
	Jaccard        float64   `json:"jaccard"`
	CommonCount    int       `json:"common_count"`
	CommonKeywords StringSet `json:"common_keywords"`
}

// PotentialLink is a candidate pairing awaiting human disposition.
//
// Invariants:
//   - at most one link exists per (PromiseID, EvidenceID), whatever its status
//   - LinkStatus moves pending_review -> confirmed | rejected once
//   - scores never change after creation; only LinkStatus, ReviewedAt and
//     ReviewerNotes are written by review
type PotentialLink struct {
	ID             id.LinkID      `json:"id"`
	PromiseID      id.PromiseID   `json:"promise_id"`
	EvidenceID     id.EvidenceID  `json:"evidence_id"`
	LinkStatus     LinkStatus     `json:"link_status"`
	KeywordOverlap KeywordOverlap `json:"keyword_overlap_score"`
	LLMLikelihood  Likelihood     `json:"llm_likelihood_score"`
	LLMExplanation string         `json:"llm_explanation"`
	CreatedAt      time.Time      `json:"created_at"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	ReviewerNotes  string         `json:"reviewer_notes,omitempty"`
}

// CanResolve returns a precondition error once the link has been reviewed.
// Review treats that error as a no-op rather than a failure.
func (l *PotentialLink) CanResolve() error {
	if l.LinkStatus != LinkStatusPendingReview {
		return dErrors.New(dErrors.CodePreconditionFailed, "link already "+string(l.LinkStatus))
	}
	return nil
}

// ApplyConfirm marks the link confirmed. Call CanResolve first.
func (l *PotentialLink) ApplyConfirm(now time.Time, notes string) {
	l.resolve(LinkStatusConfirmed, now, notes)
}

// ApplyReject marks the link rejected. Call CanResolve first.
func (l *PotentialLink) ApplyReject(now time.Time, reason string) {
	l.resolve(LinkStatusRejected, now, reason)
}

func (l *PotentialLink) resolve(status LinkStatus, now time.Time, notes string) {
	reviewed := now
	l.LinkStatus = status
	l.ReviewedAt = &reviewed
	l.ReviewerNotes = notes
}

func (l *PotentialLink) Clone() *PotentialLink {
	if l == nil {
		return nil
	}
	c := *l
	c.KeywordOverlap.CommonKeywords = l.KeywordOverlap.CommonKeywords.Clone()
	if l.ReviewedAt != nil {
		t := *l.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}

// NewPotentialLink builds a pending link from scorer output.
func NewPotentialLink(promiseID id.PromiseID, evidenceID id.EvidenceID, overlap KeywordOverlap,
	likelihood Likelihood, explanation string, now time.Time,
) *PotentialLink {
	return &PotentialLink{
		ID:             id.NewLinkID(),
		PromiseID:      promiseID,
		EvidenceID:     evidenceID,
		LinkStatus:     LinkStatusPendingReview,
		KeywordOverlap: overlap,
		LLMLikelihood:  likelihood,
		LLMExplanation: explanation,
		CreatedAt:      now,
	}
}
