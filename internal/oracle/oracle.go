// Package oracle defines the semantic scoring contract and its adapters.
//
// An Oracle judges whether an evidence text bears on a promise text. Every
// failure is an *Error; callers treat all of them as "try again later", never
// as a rejection of the candidate. Rate limiting is its own category so a
// batch can stop calling for the rest of the run.
package oracle

import (
	"context"

	"promisetracker/internal/models"
)

// Verdict is the oracle's judgement for one (evidence, promise) pair.
type Verdict struct {
	Likelihood  models.Likelihood `json:"likelihood"`
	Explanation string            `json:"explanation"`
}

type Oracle interface {
	Score(ctx context.Context, evidenceText, promiseText string) (Verdict, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, evidenceText, promiseText string) (Verdict, error)

func (f Func) Score(ctx context.Context, evidenceText, promiseText string) (Verdict, error) {
	return f(ctx, evidenceText, promiseText)
}
