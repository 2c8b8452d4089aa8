// Package config loads pipeline configuration from defaults, an optional YAML
// file and PROMISES_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"promisetracker/internal/materializer"
)

const envPrefix = "PROMISES"

type Config struct {
	Server   Server   `mapstructure:"server" yaml:"server"`
	Database Database `mapstructure:"database" yaml:"database"`
	Redis    Redis    `mapstructure:"redis" yaml:"redis"`
	Kafka    Kafka    `mapstructure:"kafka" yaml:"kafka"`
	Oracle   Oracle   `mapstructure:"oracle" yaml:"oracle"`
	Pipeline Pipeline `mapstructure:"pipeline" yaml:"pipeline"`
	Logging  Logging  `mapstructure:"logging" yaml:"logging"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AdminToken guards /admin routes when set.
	AdminToken string `mapstructure:"admin_token" yaml:"admin_token"`
}

// Database selects the store. An empty DSN runs on the in-memory store.
type Database struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// Redis backs the shared oracle quota. An empty URL keeps the quota local.
type Redis struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Kafka receives the audit outbox. No brokers disables publishing.
type Kafka struct {
	Brokers           []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic             string        `mapstructure:"topic" yaml:"topic"`
	Partitions        int32         `mapstructure:"partitions" yaml:"partitions"`
	ReplicationFactor int16         `mapstructure:"replication_factor" yaml:"replication_factor"`
	OutboxBatchSize   int           `mapstructure:"outbox_batch_size" yaml:"outbox_batch_size"`
	OutboxInterval    time.Duration `mapstructure:"outbox_interval" yaml:"outbox_interval"`
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// Oracle configures semantic scoring. Provider "none" scores lexically only.
type Oracle struct {
	Provider         string        `mapstructure:"provider" yaml:"provider"`
	Model            string        `mapstructure:"model" yaml:"model"`
	APIKey           string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Requests         int           `mapstructure:"requests" yaml:"requests"`
	Window           time.Duration `mapstructure:"window" yaml:"window"`
	Burst            int           `mapstructure:"burst" yaml:"burst"`
	MaxWait          time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	BreakerFailures  int           `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerSuccesses int           `mapstructure:"breaker_successes" yaml:"breaker_successes"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

func (o Oracle) Enabled() bool {
	return o.Provider != "" && o.Provider != "none"
}

// Pipeline holds the run-independent tunables of materialization, scoring
// and batching.
type Pipeline struct {
	Workers              int                    `mapstructure:"workers" yaml:"workers"`
	ClaimLease           time.Duration          `mapstructure:"claim_lease" yaml:"claim_lease"`
	MaxItems             int                    `mapstructure:"max_items" yaml:"max_items"`
	JaccardFloor         float64                `mapstructure:"jaccard_floor" yaml:"jaccard_floor"`
	MinLexicalLikelihood string                 `mapstructure:"min_lexical_likelihood" yaml:"min_lexical_likelihood"`
	CandidateWindow      time.Duration          `mapstructure:"candidate_window" yaml:"candidate_window"`
	MinKeywords          int                    `mapstructure:"min_keywords" yaml:"min_keywords"`
	SkipTitlePatterns    []string               `mapstructure:"skip_title_patterns" yaml:"skip_title_patterns"`
	SummaryRunes         int                    `mapstructure:"summary_runes" yaml:"summary_runes"`
	Sessions             []materializer.Session `mapstructure:"sessions" yaml:"sessions"`
}

type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "promises.review-events")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("kafka.outbox_batch_size", 100)
	v.SetDefault("kafka.outbox_interval", 2*time.Second)

	v.SetDefault("oracle.provider", "none")
	v.SetDefault("oracle.model", "gpt-4o-mini")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("oracle.requests", 60)
	v.SetDefault("oracle.window", time.Minute)
	v.SetDefault("oracle.burst", 1)
	v.SetDefault("oracle.max_wait", 5*time.Second)
	v.SetDefault("oracle.cache_ttl", time.Hour)
	v.SetDefault("oracle.breaker_failures", 5)
	v.SetDefault("oracle.breaker_successes", 1)
	v.SetDefault("oracle.breaker_cooldown", 30*time.Second)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.claim_lease", 10*time.Minute)
	v.SetDefault("pipeline.max_items", 500)
	v.SetDefault("pipeline.jaccard_floor", 0.0)
	v.SetDefault("pipeline.min_lexical_likelihood", "")
	v.SetDefault("pipeline.candidate_window", time.Duration(0))
	v.SetDefault("pipeline.min_keywords", materializer.DefaultMinKeywords)
	v.SetDefault("pipeline.skip_title_patterns", []string{})
	v.SetDefault("pipeline.summary_runes", materializer.DefaultSummaryRunes)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// New returns a viper instance with defaults and environment binding set, so
// callers can bind flags before Load reads it.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, when set, over the defaults and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds the config from PROMISES_* variables and the optional file
// named by PROMISES_CONFIG so main stays lean.
func FromEnv() (*Config, error) {
	return Load(New(), os.Getenv(envPrefix+"_CONFIG"))
}

func (c *Config) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if c.Pipeline.JaccardFloor < 0 || c.Pipeline.JaccardFloor > 1 {
		return fmt.Errorf("pipeline.jaccard_floor must be within [0, 1]")
	}
	switch c.Pipeline.MinLexicalLikelihood {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("pipeline.min_lexical_likelihood must be low, medium or high")
	}
	switch c.Oracle.Provider {
	case "", "none":
	case "openai":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("oracle.api_key is required for provider openai")
		}
		if c.Oracle.Requests <= 0 || c.Oracle.Window <= 0 {
			return fmt.Errorf("oracle.requests and oracle.window must be positive")
		}
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Oracle.APIKey != "" {
		c.Oracle.APIKey = "<redacted>"
	}
	if c.Server.AdminToken != "" {
		c.Server.AdminToken = "<redacted>"
	}
	if c.Database.DSN != "" {
		c.Database.DSN = "<redacted>"
	}
	return c
}
