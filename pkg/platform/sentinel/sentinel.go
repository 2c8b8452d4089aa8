package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: a unique key (source key, promise/evidence pair) is taken
//   - ErrInvalidState: a conditional status transition found a different status
//   - ErrUnavailable: backing service temporarily unavailable
//   - ErrRateLimited: an upstream quota is exhausted for the current window
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrRateLimited  = errors.New("rate limited")
)
