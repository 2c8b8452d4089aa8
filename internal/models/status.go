package models

// EvidenceStatus is the processing state of an evidence item.
//
// Transitions:
//   - pending_link_generation -> pending_review | linked | no_candidates_found | error_data_integrity
//   - pending_review -> linked | no_candidates_found | error_data_integrity
//   - no_candidates_found -> pending_review (forced re-run only) | error_data_integrity
//   - linked, error_data_integrity: terminal for automatic processing
type EvidenceStatus string

const (
	EvidenceStatusPendingLinkGeneration EvidenceStatus = "pending_link_generation"
	EvidenceStatusPendingReview         EvidenceStatus = "pending_review"
	EvidenceStatusLinked                EvidenceStatus = "linked"
	EvidenceStatusNoCandidatesFound     EvidenceStatus = "no_candidates_found"
	EvidenceStatusErrorDataIntegrity    EvidenceStatus = "error_data_integrity"
)

var evidenceTransitions = map[EvidenceStatus][]EvidenceStatus{
	EvidenceStatusPendingLinkGeneration: {
		EvidenceStatusPendingReview,
		EvidenceStatusLinked,
		EvidenceStatusNoCandidatesFound,
		EvidenceStatusErrorDataIntegrity,
	},
	EvidenceStatusPendingReview: {
		EvidenceStatusLinked,
		EvidenceStatusNoCandidatesFound,
		EvidenceStatusErrorDataIntegrity,
	},
	EvidenceStatusNoCandidatesFound: {
		EvidenceStatusPendingReview,
		EvidenceStatusErrorDataIntegrity,
	},
}

func (s EvidenceStatus) String() string { return string(s) }

func (s EvidenceStatus) Valid() bool {
	switch s {
	case EvidenceStatusPendingLinkGeneration, EvidenceStatusPendingReview, EvidenceStatusLinked,
		EvidenceStatusNoCandidatesFound, EvidenceStatusErrorDataIntegrity:
		return true
	}
	return false
}

func (s EvidenceStatus) CanTransitionTo(next EvidenceStatus) bool {
	return contains(evidenceTransitions[s], next)
}

// IsTerminal reports whether automatic processing stops at s. A forced
// link-generation run may still re-enter from no_candidates_found.
func (s EvidenceStatus) IsTerminal() bool {
	return s == EvidenceStatusLinked || s == EvidenceStatusErrorDataIntegrity
}

// ParseEvidenceStatus returns the status for s, or false when s is not one of
// the defined values.
func ParseEvidenceStatus(s string) (EvidenceStatus, bool) {
	status := EvidenceStatus(s)
	return status, status.Valid()
}

// IngestStatus is the ingestion-side status the materializer stamps on a raw
// document. A raw document without an ingest record has not been migrated into
// the pipeline and is never selected as work.
type IngestStatus string

const (
	IngestStatusPendingEvidenceCreation IngestStatus = "pending_evidence_creation"
	IngestStatusEvidenceCreated         IngestStatus = "evidence_created"
	IngestStatusSkippedLowRelevance     IngestStatus = "skipped_low_relevance"
	IngestStatusErrorMaterialization    IngestStatus = "error_materialization"
)

var ingestTransitions = map[IngestStatus][]IngestStatus{
	IngestStatusPendingEvidenceCreation: {
		IngestStatusEvidenceCreated,
		IngestStatusSkippedLowRelevance,
		IngestStatusErrorMaterialization,
	},
	IngestStatusErrorMaterialization: {
		IngestStatusEvidenceCreated,
		IngestStatusSkippedLowRelevance,
		IngestStatusErrorMaterialization,
	},
}

func (s IngestStatus) String() string { return string(s) }

func (s IngestStatus) Valid() bool {
	switch s {
	case IngestStatusPendingEvidenceCreation, IngestStatusEvidenceCreated,
		IngestStatusSkippedLowRelevance, IngestStatusErrorMaterialization:
		return true
	}
	return false
}

func (s IngestStatus) CanTransitionTo(next IngestStatus) bool {
	return contains(ingestTransitions[s], next)
}

func (s IngestStatus) IsTerminal() bool {
	return s == IngestStatusEvidenceCreated || s == IngestStatusSkippedLowRelevance
}

// NeedsMaterialization reports whether a batch run should pick the record up.
func (s IngestStatus) NeedsMaterialization() bool {
	return s == IngestStatusPendingEvidenceCreation || s == IngestStatusErrorMaterialization
}

// LinkStatus is the review state of a potential link. It moves once, from
// pending_review to confirmed or rejected, and never back.
type LinkStatus string

const (
	LinkStatusPendingReview LinkStatus = "pending_review"
	LinkStatusConfirmed     LinkStatus = "confirmed"
	LinkStatusRejected      LinkStatus = "rejected"
)

func (s LinkStatus) String() string { return string(s) }

func (s LinkStatus) Valid() bool {
	return s == LinkStatusPendingReview || s == LinkStatusConfirmed || s == LinkStatusRejected
}

func (s LinkStatus) CanTransitionTo(next LinkStatus) bool {
	return s == LinkStatusPendingReview && (next == LinkStatusConfirmed || next == LinkStatusRejected)
}

func (s LinkStatus) IsTerminal() bool {
	return s == LinkStatusConfirmed || s == LinkStatusRejected
}

// PromiseStatus marks whether a promise takes part in candidate generation.
type PromiseStatus string

const (
	PromiseStatusActive  PromiseStatus = "active"
	PromiseStatusDeleted PromiseStatus = "deleted"
)

func (s PromiseStatus) Valid() bool {
	return s == PromiseStatusActive || s == PromiseStatusDeleted
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
