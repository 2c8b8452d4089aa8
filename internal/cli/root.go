// Package cli implements the pipeline command: batch runs, legacy migration,
// consistency checks and config inspection.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"promisetracker/internal/app"
	"promisetracker/internal/platform/config"
	"promisetracker/internal/platform/logger"
	"promisetracker/internal/platform/metrics"
)

// Builder assembles the services for one command invocation.
type Builder func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error)

type root struct {
	cfgFile string
	verbose bool
	build   Builder
	v       *viper.Viper
}

type Option func(*root)

// WithBuilder replaces app.Build, mainly so tests can seed the store.
func WithBuilder(b Builder) Option {
	return func(r *root) {
		r.build = b
	}
}

// NewRootCmd returns the pipeline command tree. Flags override PROMISES_*
// variables, which override the config file, which overrides defaults.
func NewRootCmd(opts ...Option) *cobra.Command {
	r := &root{
		build: func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app.App, error) {
			return app.Build(ctx, cfg, log, metrics.New())
		},
		v: config.New(),
	}
	for _, opt := range opts {
		opt(r)
	}

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Promise tracker evidence pipeline",
		Long: `pipeline drives the evidence pipeline outside the HTTP server:
materialize raw documents into evidence, generate candidate links,
migrate legacy records and audit the promise/evidence reference sets.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&r.cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().String("log-format", "", "log format (json or text)")
	_ = r.v.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))

	cmd.AddCommand(
		newRunCmd(r),
		newMigrateCmd(r),
		newVerifyCmd(r),
		newConfigCmd(r),
	)
	return cmd
}

// Execute runs the command tree until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (r *root) loadConfig() (*config.Config, error) {
	if r.verbose {
		r.v.Set("logging.level", "debug")
	}
	path := r.cfgFile
	if path == "" {
		path = os.Getenv("PROMISES_CONFIG")
	}
	return config.Load(r.v, path)
}

// open loads the config and builds the services. The caller closes the app.
func (r *root) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging)
	a, err := r.build(cmd.Context(), cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}
	return a, nil
}
