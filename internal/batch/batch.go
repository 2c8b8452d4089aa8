// Package batch drives the materializer and the link generator over bounded,
// date-scoped windows of work claimed from the store.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"promisetracker/internal/linkgen"
	"promisetracker/internal/materializer"
	"promisetracker/internal/models"
	"promisetracker/internal/oracle"
	"promisetracker/internal/platform/metrics"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/requestcontext"
)

const (
	DefaultWorkers  = 4
	DefaultLease    = 10 * time.Minute
	DefaultMaxItems = 500
)

type Stage string

const (
	StageMaterialize   Stage = "materialize"
	StageGenerateLinks Stage = "generate_links"
)

func (s Stage) Valid() bool {
	return s == StageMaterialize || s == StageGenerateLinks
}

// Request describes one bounded run. WindowStart is inclusive and WindowEnd
// exclusive; either may be zero for an open bound.
type Request struct {
	Stage       Stage     `json:"stage"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	MaxItems    int       `json:"max_items"`
	Force       bool      `json:"force"`
	Session     string    `json:"session"`
}

func (r Request) Validate() error {
	if !r.Stage.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown stage %q", r.Stage))
	}
	if r.MaxItems < 0 {
		return dErrors.New(dErrors.CodeValidation, "max_items must not be negative")
	}
	if !r.WindowStart.IsZero() && !r.WindowEnd.IsZero() && !r.WindowStart.Before(r.WindowEnd) {
		return dErrors.New(dErrors.CodeValidation, "window_start must be before window_end")
	}
	if r.Force && r.Stage != StageGenerateLinks {
		return dErrors.New(dErrors.CodeValidation, "force applies to generate_links only")
	}
	return nil
}

// Tally counts per-item results of a run. Every claimed item lands in exactly
// one of Created, Skipped, RateLimited or Errored.
type Tally struct {
	Attempted    int `json:"attempted" yaml:"attempted"`
	Created      int `json:"created" yaml:"created"`
	Skipped      int `json:"skipped" yaml:"skipped"`
	RateLimited  int `json:"rate_limited" yaml:"rate_limited"`
	Errored      int `json:"errored" yaml:"errored"`
	LinksCreated int `json:"links_created" yaml:"links_created"`
}

// Queue is the claim side of the store.
type Queue interface {
	ClaimIngest(ctx context.Context, req models.ClaimRequest) ([]*models.IngestRecord, error)
	ReleaseIngestClaim(ctx context.Context, rawID id.RawID, owner string) error
	ClaimEvidence(ctx context.Context, req models.ClaimRequest) ([]*models.EvidenceItem, error)
	ReleaseEvidenceClaim(ctx context.Context, evidenceID id.EvidenceID, owner string) error
}

type Materializer interface {
	Materialize(ctx context.Context, rawID id.RawID) (materializer.Outcome, error)
}

type LinkGenerator interface {
	Generate(ctx context.Context, evidenceID id.EvidenceID, opts linkgen.Options) (linkgen.Outcome, error)
}

type Orchestrator struct {
	queue           Queue
	materializer    Materializer
	generator       LinkGenerator
	workers         int
	lease           time.Duration
	defaultMax      int
	candidateWindow time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
}

type Option func(*Orchestrator)

// WithWorkers bounds concurrent per-item work. Keep it at or below what the
// oracle quota sustains.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLease sets how long a claim survives a crashed run.
func WithLease(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.lease = d
		}
	}
}

// WithDefaultMaxItems caps runs whose request leaves MaxItems at zero.
func WithDefaultMaxItems(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.defaultMax = n
		}
	}
}

func WithCandidateWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.candidateWindow = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func New(queue Queue, m Materializer, g LinkGenerator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		queue:        queue,
		materializer: m,
		generator:    g,
		workers:      DefaultWorkers,
		lease:        DefaultLease,
		defaultMax:   DefaultMaxItems,
		logger:       slog.Default(),
		tracer:       otel.Tracer("promisetracker/batch"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds the state scoped to one RunBatch call.
type run struct {
	req         Request
	owner       string
	rateLimited atomic.Bool

	mu    sync.Mutex
	tally Tally
}

func (r *run) count(fn func(t *Tally)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.tally)
}

// RunBatch claims up to MaxItems items of the requested stage and processes
// them on a bounded worker pool. A cancelled context stops the run between
// items; the partial tally is returned with the context error.
func (o *Orchestrator) RunBatch(ctx context.Context, req Request) (Tally, error) {
	if err := req.Validate(); err != nil {
		return Tally{}, err
	}
	if req.MaxItems == 0 {
		req.MaxItems = o.defaultMax
	}

	ctx, span := o.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("stage", string(req.Stage)),
		attribute.Int("max_items", req.MaxItems),
		attribute.Bool("force", req.Force),
	))
	defer span.End()
	start := time.Now()
	defer o.metrics.ObserveBatch(string(req.Stage), start)

	if err := ctx.Err(); err != nil {
		return Tally{}, dErrors.Wrap(err, dErrors.CodeTimeout, "batch run cancelled")
	}

	r := &run{req: req, owner: uuid.NewString()}
	claim := models.ClaimRequest{
		Window: models.Window{Start: req.WindowStart, End: req.WindowEnd},
		Max:    req.MaxItems,
		Owner:  r.owner,
		Lease:  o.lease,
		Now:    requestcontext.Now(ctx),
	}

	var err error
	switch req.Stage {
	case StageMaterialize:
		err = o.runMaterialize(ctx, r, claim)
	case StageGenerateLinks:
		claim.Statuses = linkgen.EligibleStatuses(req.Force)
		err = o.runGenerate(ctx, r, claim)
	}

	tally := r.tally
	span.SetAttributes(
		attribute.Int("attempted", tally.Attempted),
		attribute.Int("created", tally.Created),
		attribute.Int("errored", tally.Errored),
		attribute.Int("rate_limited", tally.RateLimited),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch run failed")
		o.logger.WarnContext(ctx, "batch run stopped", "stage", req.Stage, "owner", r.owner, "error", err)
		return tally, err
	}
	o.logger.InfoContext(ctx, "batch run complete",
		"stage", req.Stage,
		"owner", r.owner,
		"attempted", tally.Attempted,
		"created", tally.Created,
		"skipped", tally.Skipped,
		"rate_limited", tally.RateLimited,
		"errored", tally.Errored,
		"links_created", tally.LinksCreated,
		"duration", time.Since(start),
	)
	return tally, nil
}

func (o *Orchestrator) runMaterialize(ctx context.Context, r *run, claim models.ClaimRequest) error {
	records, err := o.queue.ClaimIngest(ctx, claim)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim ingest records")
	}
	defer o.release(ctx, len(records), func(ctx context.Context, i int) error {
		return o.queue.ReleaseIngestClaim(ctx, records[i].RawID, r.owner)
	})
	return o.each(ctx, len(records), func(ctx context.Context, i int) {
		rawID := records[i].RawID
		r.count(func(t *Tally) { t.Attempted++ })

		out, err := o.materializer.Materialize(ctx, rawID)
		if err != nil {
			o.logger.ErrorContext(ctx, "materialize failed", "raw_id", rawID, "error", err)
			o.record(r, StageMaterialize, "errored", func(t *Tally) { t.Errored++ })
			return
		}
		switch {
		case out.Created:
			o.record(r, StageMaterialize, "created", func(t *Tally) { t.Created++ })
		case out.Status == models.IngestStatusErrorMaterialization:
			o.record(r, StageMaterialize, "errored", func(t *Tally) { t.Errored++ })
		default:
			o.record(r, StageMaterialize, "skipped", func(t *Tally) { t.Skipped++ })
		}
	})
}

func (o *Orchestrator) runGenerate(ctx context.Context, r *run, claim models.ClaimRequest) error {
	items, err := o.queue.ClaimEvidence(ctx, claim)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim evidence items")
	}
	opts := linkgen.Options{
		Force:           r.req.Force,
		Session:         r.req.Session,
		CandidateWindow: o.candidateWindow,
	}
	defer o.release(ctx, len(items), func(ctx context.Context, i int) error {
		return o.queue.ReleaseEvidenceClaim(ctx, items[i].ID, r.owner)
	})
	return o.each(ctx, len(items), func(ctx context.Context, i int) {
		evidenceID := items[i].ID
		r.count(func(t *Tally) { t.Attempted++ })

		if r.rateLimited.Load() {
			o.record(r, StageGenerateLinks, "rate_limited", func(t *Tally) { t.RateLimited++ })
			return
		}

		ctx, span := o.tracer.Start(ctx, "batch.generate_links",
			trace.WithAttributes(attribute.String("evidence_id", evidenceID.String())))
		defer span.End()

		out, err := o.generator.Generate(ctx, evidenceID, opts)
		switch {
		case err == nil:
		case oracle.IsRateLimited(err):
			if r.rateLimited.CompareAndSwap(false, true) {
				o.logger.WarnContext(ctx, "oracle rate limited, skipping remaining items", "evidence_id", evidenceID)
			}
			o.record(r, StageGenerateLinks, "rate_limited", func(t *Tally) { t.RateLimited++ })
			return
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "link generation failed")
			level := slog.LevelError
			if oracle.IsTransient(err) {
				level = slog.LevelWarn
			}
			o.logger.Log(ctx, level, "link generation failed", "evidence_id", evidenceID, "error", err)
			o.record(r, StageGenerateLinks, "errored", func(t *Tally) { t.Errored++ })
			return
		}

		if out.LinksCreated > 0 {
			o.record(r, StageGenerateLinks, "created", func(t *Tally) {
				t.Created++
				t.LinksCreated += out.LinksCreated
			})
			return
		}
		o.record(r, StageGenerateLinks, "skipped", func(t *Tally) { t.Skipped++ })
	})
}

// each runs fn for indexes [0, n) on the worker pool. Items not yet started
// when ctx is cancelled are left untouched and uncounted.
func (o *Orchestrator) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "batch run cancelled")
	}
	return nil
}

// release drops every claim of the run, including items a cancelled run never
// started. It must outlive the run context.
func (o *Orchestrator) release(ctx context.Context, n int, fn func(ctx context.Context, i int) error) {
	detached := context.WithoutCancel(ctx)
	for i := 0; i < n; i++ {
		if err := fn(detached, i); err != nil {
			o.logger.WarnContext(ctx, "failed to release claim", "error", err)
		}
	}
}

func (o *Orchestrator) record(r *run, stage Stage, outcome string, fn func(t *Tally)) {
	r.count(fn)
	o.metrics.IncBatchItem(string(stage), outcome)
}
