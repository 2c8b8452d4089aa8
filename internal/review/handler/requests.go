package handler

import (
	"strings"
	"unicode/utf8"

	dErrors "promisetracker/pkg/domain-errors"
)

const maxNotesRunes = 2000

// DecisionRequest is the optional body of confirm and reject calls. Confirm
// reads Notes, reject reads Reason.
type DecisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (r *DecisionRequest) Normalize() {
	r.Notes = strings.TrimSpace(r.Notes)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *DecisionRequest) Validate() error {
	if utf8.RuneCountInString(r.Notes) > maxNotesRunes || utf8.RuneCountInString(r.Reason) > maxNotesRunes {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 2000 characters")
	}
	return nil
}
