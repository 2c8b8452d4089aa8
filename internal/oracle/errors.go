package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Category normalizes oracle failures.
type Category string

const (
	CategoryRateLimited Category = "rate_limited"
	CategoryTimeout     Category = "timeout"
	CategoryOutage      Category = "outage"
	CategoryBadResponse Category = "bad_response"
	CategoryCircuitOpen Category = "circuit_open"
	CategoryInternal    Category = "internal"
)

// Error wraps an oracle failure with its category.
type Error struct {
	Category   Category
	Message    string
	Underlying error
	// Retryable is false only for failures a later run cannot fix, such as a
	// missing API key.
	Retryable bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("oracle [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("oracle [%s]: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func NewError(category Category, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Message:    message,
		Underlying: underlying,
		Retryable:  category != CategoryInternal,
	}
}

// IsRateLimited reports whether err means the quota for the current window
// is spent.
func IsRateLimited(err error) bool {
	return CategoryOf(err) == CategoryRateLimited
}

// IsTransient reports whether err is a failure other than rate limiting that
// leaves the item for a later run.
func IsTransient(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Category != CategoryRateLimited
	}
	return err != nil
}

func CategoryOf(err error) Category {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryInternal
}
