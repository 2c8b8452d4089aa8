package scoring

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"promisetracker/internal/models"
	"promisetracker/internal/oracle"
	"promisetracker/internal/platform/metrics"
)

// Config holds the proposal thresholds. The zero value proposes any pair
// with some keyword overlap or a medium/high verdict.
type Config struct {
	// JaccardFloor is the minimum non-zero jaccard that proposes a pair on
	// lexical overlap alone.
	JaccardFloor float64
	// MinLexicalLikelihood, when set, discards lexical-only candidates whose
	// verdict ranks below it. Ignored when no oracle is configured.
	MinLexicalLikelihood models.Likelihood
}

// ShouldPropose applies the proposal rule. A pair with zero overlap and a
// low verdict is never proposed.
func ShouldPropose(o models.KeywordOverlap, l models.Likelihood, cfg Config) bool {
	if l.AtLeast(models.LikelihoodMedium) {
		return true
	}
	if o.Jaccard <= 0 || o.Jaccard < cfg.JaccardFloor {
		return false
	}
	if cfg.MinLexicalLikelihood != "" && !l.AtLeast(cfg.MinLexicalLikelihood) {
		return false
	}
	return true
}

// Text is one side of a pair with its keywords computed once.
type Text struct {
	Body     string
	Keywords models.StringSet
}

func NewText(body string) Text {
	return Text{Body: body, Keywords: Keywords(body)}
}

// Result is the score of one (evidence, promise) pair.
type Result struct {
	Overlap     models.KeywordOverlap
	Likelihood  models.Likelihood
	Explanation string
	Proposed    bool
}

// Scorer scores candidate pairs.
type Scorer struct {
	oracle  oracle.Oracle
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Scorer)

// WithOracle enables semantic scoring. Without it every verdict is low.
func WithOracle(o oracle.Oracle) Option {
	return func(s *Scorer) {
		s.oracle = o
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scorer) {
		s.metrics = m
	}
}

func New(cfg Config, opts ...Option) *Scorer {
	s := &Scorer{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.oracle == nil {
		s.cfg.MinLexicalLikelihood = ""
	}
	return s
}

// Semantic reports whether an oracle is configured.
func (s *Scorer) Semantic() bool {
	return s.oracle != nil
}

// Score computes the overlap and verdict for a pair. Oracle failures are
// returned unchanged so callers can tell rate limiting from transient errors.
func (s *Scorer) Score(ctx context.Context, evidence, promise Text) (Result, error) {
	res := Result{
		Overlap:    Overlap(evidence.Keywords, promise.Keywords),
		Likelihood: models.LikelihoodLow,
	}
	if s.oracle != nil {
		start := time.Now()
		v, err := s.oracle.Score(ctx, evidence.Body, promise.Body)
		if err != nil {
			category := oracle.CategoryOf(err)
			s.metrics.ObserveOracle(string(category), start)
			s.logger.DebugContext(ctx, "oracle call failed", "category", category, "error", err)
			return Result{}, err
		}
		s.metrics.ObserveOracle("ok", start)
		res.Likelihood = v.Likelihood
		res.Explanation = strings.TrimSpace(v.Explanation)
	}
	res.Proposed = ShouldPropose(res.Overlap, res.Likelihood, s.cfg)
	return res, nil
}
