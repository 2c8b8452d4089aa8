package migration

import (
	"context"

	"promisetracker/internal/models"
	dErrors "promisetracker/pkg/domain-errors"
)

// IssueKind names one way the reference sets can disagree.
type IssueKind string

const (
	// promise lists evidence that does not list the promise back
	IssueEvidenceMissingBackReference IssueKind = "evidence_missing_back_reference"
	// evidence lists a promise that does not list it back
	IssuePromiseMissingBackReference IssueKind = "promise_missing_back_reference"
	IssueDanglingEvidence            IssueKind = "dangling_evidence_reference"
	IssueDanglingPromise             IssueKind = "dangling_promise_reference"
	// a confirmed link whose pair is absent from either set
	IssueConfirmedLinkUnapplied IssueKind = "confirmed_link_unapplied"
)

type Issue struct {
	Kind       IssueKind `json:"kind" yaml:"kind"`
	PromiseID  string    `json:"promise_id" yaml:"promise_id"`
	EvidenceID string    `json:"evidence_id" yaml:"evidence_id"`
	LinkID     string    `json:"link_id,omitempty" yaml:"link_id,omitempty"`
}

type VerifyReport struct {
	Promises       int     `json:"promises" yaml:"promises"`
	Evidence       int     `json:"evidence" yaml:"evidence"`
	ConfirmedLinks int     `json:"confirmed_links" yaml:"confirmed_links"`
	Issues         []Issue `json:"issues" yaml:"issues"`
}

func (r *VerifyReport) OK() bool {
	return len(r.Issues) == 0
}

// Verify scans both reference sets and every confirmed link. It only
// reports; repairs are a curator decision.
func (m *Migrator) Verify(ctx context.Context) (*VerifyReport, error) {
	promises, err := m.store.ListPromises(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list promises")
	}
	items, err := m.store.ListEvidence(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	confirmed, err := m.store.ListLinksByStatus(ctx, models.LinkStatusConfirmed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list confirmed links")
	}

	byPromise := make(map[string]*models.Promise, len(promises))
	for _, p := range promises {
		byPromise[p.ID.String()] = p
	}
	byEvidence := make(map[string]*models.EvidenceItem, len(items))
	for _, e := range items {
		byEvidence[e.ID.String()] = e
	}

	report := &VerifyReport{
		Promises:       len(promises),
		Evidence:       len(items),
		ConfirmedLinks: len(confirmed),
		Issues:         []Issue{},
	}
	add := func(kind IssueKind, promiseID, evidenceID, linkID string) {
		report.Issues = append(report.Issues, Issue{Kind: kind, PromiseID: promiseID, EvidenceID: evidenceID, LinkID: linkID})
	}

	for _, p := range promises {
		for _, eid := range p.LinkedEvidenceIDs {
			e, ok := byEvidence[eid]
			switch {
			case !ok:
				add(IssueDanglingEvidence, p.ID.String(), eid, "")
			case !e.PromiseIDs.Contains(p.ID.String()):
				add(IssueEvidenceMissingBackReference, p.ID.String(), eid, "")
			}
		}
	}
	for _, e := range items {
		for _, pid := range e.PromiseIDs {
			p, ok := byPromise[pid]
			switch {
			case !ok:
				add(IssueDanglingPromise, pid, e.ID.String(), "")
			case !p.LinkedEvidenceIDs.Contains(e.ID.String()):
				add(IssuePromiseMissingBackReference, pid, e.ID.String(), "")
			}
		}
	}
	for _, l := range confirmed {
		p, pok := byPromise[l.PromiseID.String()]
		e, eok := byEvidence[l.EvidenceID.String()]
		if !pok || !eok ||
			!p.LinkedEvidenceIDs.Contains(l.EvidenceID.String()) ||
			!e.PromiseIDs.Contains(l.PromiseID.String()) {
			add(IssueConfirmedLinkUnapplied, l.PromiseID.String(), l.EvidenceID.String(), l.ID.String())
		}
	}

	if len(report.Issues) > 0 {
		m.logger.WarnContext(ctx, "reference audit found issues", "issues", len(report.Issues))
	}
	return report, nil
}
