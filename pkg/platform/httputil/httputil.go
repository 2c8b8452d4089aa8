// Package httputil holds the JSON response and error mapping helpers shared by
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "promisetracker/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

// Preparable requests normalize themselves and then validate.
type Preparable interface {
	Normalize()
	Validate() error
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto an HTTP status and error body. Internal
// failures never echo their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		body["error_description"] = dErrors.MessageOf(err)
	}
	WriteJSON(w, StatusFor(code), body)
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvariantViolation, dErrors.CodePreconditionFailed:
		return http.StatusConflict
	case dErrors.CodeDataIntegrity:
		return http.StatusUnprocessableEntity
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes a bounded request body into T, rejecting unknown fields.
// An empty body decodes to the zero value.
func DecodeJSON[T any](r *http.Request) (*T, error) {
	req := new(T)
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return req, nil
}

// DecodeAndPrepare decodes, normalizes and validates a request body, writing
// the error response itself when any step fails.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, err := DecodeJSON[T](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "request_id", requestID, "error", err)
		WriteError(w, err)
		return nil, false
	}
	if p, ok := any(req).(Preparable); ok {
		p.Normalize()
		if err := p.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request", "request_id", requestID, "error", err)
			WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, err.Error()))
			return nil, false
		}
	}
	return req, true
}
