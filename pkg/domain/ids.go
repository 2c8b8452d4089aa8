package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "promisetracker/pkg/domain-errors"
)

// Typed identifiers keep promise, evidence, link and raw document IDs from
// being passed where another is expected. Construct them with the Parse
// functions at trust boundaries.
type (
	PromiseID  string
	EvidenceID string
	RawID      string
	LinkID     uuid.UUID
)

func (id PromiseID) String() string  { return string(id) }
func (id EvidenceID) String() string { return string(id) }
func (id RawID) String() string      { return string(id) }
func (id LinkID) String() string     { return uuid.UUID(id).String() }

func (id LinkID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewLinkID returns a random link identifier.
func NewLinkID() LinkID {
	return LinkID(uuid.New())
}

// evidenceNamespace scopes content-derived evidence IDs.
var evidenceNamespace = uuid.MustParse("8f3b6a52-5c1e-4d8e-9b0e-7d41c2a9e6f1")

// EvidenceIDForSource derives a stable evidence ID from its source key, so
// materializing the same raw document always yields the same ID.
func EvidenceIDForSource(sourceKey string) EvidenceID {
	return EvidenceID(uuid.NewSHA1(evidenceNamespace, []byte(sourceKey)).String())
}

func ParsePromiseID(s string) (PromiseID, error) {
	s, err := requireText(s, "promise id")
	return PromiseID(s), err
}

func ParseEvidenceID(s string) (EvidenceID, error) {
	s, err := requireText(s, "evidence id")
	return EvidenceID(s), err
}

func ParseRawID(s string) (RawID, error) {
	s, err := requireText(s, "raw document id")
	return RawID(s), err
}

func ParseLinkID(s string) (LinkID, error) {
	if strings.TrimSpace(s) == "" {
		return LinkID{}, dErrors.New(dErrors.CodeInvalidInput, "link id is required")
	}
	parsed, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return LinkID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "link id must be a UUID")
	}
	if parsed == uuid.Nil {
		return LinkID{}, dErrors.New(dErrors.CodeInvalidInput, "link id must not be nil")
	}
	return LinkID(parsed), nil
}

func requireText(s, name string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" is required")
	}
	return s, nil
}
