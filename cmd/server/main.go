package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"promisetracker/internal/admin"
	"promisetracker/internal/app"
	"promisetracker/internal/ingest"
	"promisetracker/internal/platform/config"
	"promisetracker/internal/platform/httpserver"
	"promisetracker/internal/platform/logger"
	"promisetracker/internal/platform/metrics"
	reviewhandler "promisetracker/internal/review/handler"
	adminmw "promisetracker/pkg/platform/middleware/admin"
	"promisetracker/pkg/platform/middleware/metadata"
	"promisetracker/pkg/platform/middleware/requesttime"
)

// main wires the services, exposes the HTTP router and runs the outbox
// publisher next to it. Business logic lives in the internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log, metrics.New())
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close backends", "error", err)
		}
	}()

	outbox, err := a.OutboxWorker(ctx)
	if err != nil {
		return fmt.Errorf("start outbox worker: %w", err)
	}

	srv := httpserver.New(cfg.Server.Addr, newRouter(a, log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if outbox != nil {
		g.Go(func() error {
			if err := outbox.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		log.Info("kafka not configured, review events stay in the outbox")
	}
	return g.Wait()
}

func newRouter(a *app.App, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metadata.RequestMetadata)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	reviewhandler.New(a.Review, log).Register(r)
	ingest.NewHandler(a.Ingest, log).Register(r)
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(a.Config.Server.AdminToken, log))
		admin.NewHandler(a.Admin, log).Register(r)
	})
	return r
}
