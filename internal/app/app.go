// Package app assembles stores, the oracle chain and the pipeline services
// from configuration. Both the HTTP server and the pipeline CLI start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"promisetracker/internal/admin"
	"promisetracker/internal/audit"
	"promisetracker/internal/batch"
	"promisetracker/internal/ingest"
	"promisetracker/internal/linkgen"
	"promisetracker/internal/materializer"
	"promisetracker/internal/migration"
	"promisetracker/internal/models"
	"promisetracker/internal/oracle"
	"promisetracker/internal/platform/config"
	"promisetracker/internal/platform/kafka"
	"promisetracker/internal/platform/metrics"
	pgplatform "promisetracker/internal/platform/postgres"
	"promisetracker/internal/platform/redis"
	"promisetracker/internal/review"
	"promisetracker/internal/scoring"
	"promisetracker/internal/store/memory"
	pgstore "promisetracker/internal/store/postgres"
	"promisetracker/pkg/platform/circuit"
)

const quotaPrefix = "promises:oracle:quota"

// Store is everything the services need from persistence. Both the memory
// and the Postgres store satisfy it.
type Store interface {
	materializer.Store
	linkgen.Store
	review.Store
	batch.Queue
	admin.Store
	ingest.Store
	migration.Store
	audit.OutboxAppender
	audit.OutboxStore
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*pgstore.Store)(nil)
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Store   Store

	Scorer       *scoring.Scorer
	Materializer *materializer.Materializer
	Generator    *linkgen.Generator
	Batches      *batch.Orchestrator
	Review       *review.Service
	Admin        *admin.Service
	Ingest       *ingest.Service
	Migrator     *migration.Migrator
	Emitter      *audit.Emitter

	closers []func() error
}

// Build connects the configured backends and wires the services. An empty
// database DSN runs everything on the in-memory store.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: m}
	if err := a.openStore(ctx); err != nil {
		return nil, a.fail(err)
	}

	orc, err := a.buildOracle(ctx)
	if err != nil {
		return nil, a.fail(err)
	}

	scoringOpts := []scoring.Option{scoring.WithLogger(logger), scoring.WithMetrics(m)}
	if orc != nil {
		scoringOpts = append(scoringOpts, scoring.WithOracle(orc))
	}
	a.Scorer = scoring.New(scoring.Config{
		JaccardFloor:         cfg.Pipeline.JaccardFloor,
		MinLexicalLikelihood: models.Likelihood(cfg.Pipeline.MinLexicalLikelihood),
	}, scoringOpts...)

	filter, err := materializer.NewKeywordFilter(cfg.Pipeline.MinKeywords, cfg.Pipeline.SkipTitlePatterns)
	if err != nil {
		return nil, a.fail(fmt.Errorf("build relevance filter: %w", err))
	}
	a.Materializer = materializer.New(a.Store, a.Store,
		materializer.WithFilter(filter),
		materializer.WithSummaryRunes(cfg.Pipeline.SummaryRunes),
		materializer.WithSessions(cfg.Pipeline.Sessions),
		materializer.WithLogger(logger),
	)

	a.Emitter = audit.NewEmitter(a.Store, logger)
	a.Generator = linkgen.New(a.Store, a.Store, a.Scorer,
		linkgen.WithLogger(logger),
		linkgen.WithMetrics(m),
		linkgen.WithAuditEmitter(a.Emitter),
	)
	a.Batches = batch.New(a.Store, a.Materializer, a.Generator,
		batch.WithWorkers(cfg.Pipeline.Workers),
		batch.WithLease(cfg.Pipeline.ClaimLease),
		batch.WithDefaultMaxItems(cfg.Pipeline.MaxItems),
		batch.WithCandidateWindow(cfg.Pipeline.CandidateWindow),
		batch.WithLogger(logger),
		batch.WithMetrics(m),
	)
	a.Review = review.New(a.Store, a.Store,
		review.WithLogger(logger),
		review.WithMetrics(m),
		review.WithAuditEmitter(a.Emitter),
	)
	a.Admin = admin.New(a.Store, a.Store,
		admin.WithLogger(logger),
		admin.WithAuditEmitter(a.Emitter),
		admin.WithBatchRunner(a.Batches),
	)
	a.Ingest = ingest.New(a.Store, ingest.WithLogger(logger))
	a.Migrator = migration.New(a.Store, logger)
	return a, nil
}

// OutboxWorker returns a worker publishing to Kafka, or nil when no brokers
// are configured. The topic is created if missing.
func (a *App) OutboxWorker(ctx context.Context) (*audit.Worker, error) {
	kcfg := a.Config.Kafka
	if !kcfg.Enabled() {
		return nil, nil
	}
	client, err := kafka.NewClient(ctx, kcfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		client.Close()
		return nil
	})
	if err := audit.EnsureTopic(ctx, client, kcfg.Topic, kcfg.Partitions, kcfg.ReplicationFactor); err != nil {
		return nil, err
	}
	return audit.NewWorker(a.Store, audit.NewKafkaPublisher(client, kcfg.Topic),
		audit.WithBatchSize(kcfg.OutboxBatchSize),
		audit.WithPollInterval(kcfg.OutboxInterval),
		audit.WithWorkerLogger(a.Logger),
		audit.WithWorkerMetrics(a.Metrics),
	), nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) fail(err error) error {
	return errors.Join(err, a.Close())
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn("no database configured, using in-memory store")
		a.Store = memory.New()
		return nil
	}
	db, err := pgplatform.Open(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	store := pgstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Store = store
	return nil
}

// buildOracle layers cache over breaker over quota over the provider, so
// cached pairs spend no quota and an open breaker spends none either.
func (a *App) buildOracle(ctx context.Context) (oracle.Oracle, error) {
	ocfg := a.Config.Oracle
	if !ocfg.Enabled() {
		return nil, nil
	}
	provider, err := oracle.NewOpenAI(oracle.OpenAIConfig{
		APIKey:  ocfg.APIKey,
		BaseURL: ocfg.BaseURL,
		Model:   ocfg.Model,
		Timeout: ocfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var quota oracle.Quota
	rc, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		quota = oracle.NewRedisQuota(rc.Client, quotaPrefix, ocfg.Requests, ocfg.Window)
	} else {
		quota = oracle.NewLocalQuota(ocfg.Requests, ocfg.Window, ocfg.Burst, ocfg.MaxWait)
	}

	breaker := circuit.New("oracle",
		circuit.WithFailureThreshold(ocfg.BreakerFailures),
		circuit.WithSuccessThreshold(ocfg.BreakerSuccesses),
		circuit.WithCooldown(ocfg.BreakerCooldown),
	)
	var chain oracle.Oracle = oracle.NewGuarded(oracle.NewLimited(provider, quota), breaker, a.Logger)
	if ocfg.CacheTTL > 0 {
		chain = oracle.NewCached(chain, ocfg.CacheTTL)
	}
	return chain, nil
}
