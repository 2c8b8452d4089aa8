package testutil

import (
	"net/http"
	"time"

	"promisetracker/pkg/requestcontext"
)

// WithActor sets the reviewer identity the metadata middleware would set.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestTime pins the request clock so handlers stamp a known time.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
