package models

import (
	"time"

	id "promisetracker/pkg/domain"
)

// Promise is a tracked government commitment.
type Promise struct {
	ID                id.PromiseID  `json:"id"`
	Text              string        `json:"text"`
	Department        string        `json:"department"`
	ParliamentSession string        `json:"parliament_session,omitempty"`
	DateIssued        time.Time     `json:"date_issued"`
	Status            PromiseStatus `json:"status"`
	LinkedEvidenceIDs StringSet     `json:"linked_evidence_ids"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (p *Promise) IsActive() bool {
	return p.Status == PromiseStatusActive
}

// AttachEvidence adds evidenceID to the linked set and reports whether it was new.
func (p *Promise) AttachEvidence(evidenceID id.EvidenceID, now time.Time) bool {
	next, added := p.LinkedEvidenceIDs.Add(string(evidenceID))
	if added {
		p.LinkedEvidenceIDs = next
		p.UpdatedAt = now
	}
	return added
}

func (p *Promise) Clone() *Promise {
	if p == nil {
		return nil
	}
	c := *p
	c.LinkedEvidenceIDs = p.LinkedEvidenceIDs.Clone()
	return &c
}
