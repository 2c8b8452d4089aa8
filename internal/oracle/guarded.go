package oracle

import (
	"context"
	"log/slog"

	"promisetracker/pkg/platform/circuit"
)

// Guarded trips a circuit breaker after consecutive outages and fails fast
// while it is open. Rate limiting does not count as an outage.
type Guarded struct {
	next    Oracle
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Oracle, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Score(ctx context.Context, evidenceText, promiseText string) (Verdict, error) {
	if !g.breaker.Allow() {
		return Verdict{}, NewError(CategoryCircuitOpen, "oracle circuit open", nil)
	}

	v, err := g.next.Score(ctx, evidenceText, promiseText)
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "oracle circuit closed", "breaker", g.breaker.Name())
		}
		return v, nil
	}
	if IsRateLimited(err) {
		return Verdict{}, err
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "oracle circuit opened", "breaker", g.breaker.Name(), "error", err)
	}
	return Verdict{}, err
}
