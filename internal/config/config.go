// Package config loads and validates ingest service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-media-ingest/internal/extractor"
	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/policy/ratelimit"
)

// Backend names accepted by the store, queue, and snapshot sections.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendGCS    = "gcs"
	BackendLocal  = "local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	HealthTimeout   time.Duration `mapstructure:"health_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects the key-value backend for jobs and cached results.
type StoreConfig struct {
	Backend    string        `mapstructure:"backend"`
	RedisURL   string        `mapstructure:"redis_url"`
	BadgerPath string        `mapstructure:"badger_path"`
	JobTTL     time.Duration `mapstructure:"job_ttl"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// QueueConfig selects the job queue backend.
type QueueConfig struct {
	Backend  string `mapstructure:"backend"`
	Depth    int    `mapstructure:"depth"`
	RedisKey string `mapstructure:"redis_key"`
}

// WorkerConfig governs the dispatcher pool.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// ExtractorConfig configures the engines and the fallback chain.
type ExtractorConfig struct {
	Binary            string            `mapstructure:"binary"`
	AttemptTimeout    time.Duration     `mapstructure:"attempt_timeout"`
	BackoffMin        time.Duration     `mapstructure:"backoff_min"`
	BackoffMax        time.Duration     `mapstructure:"backoff_max"`
	ProtectedDomains  []string          `mapstructure:"protected_domains"`
	Strategies        []ingest.Strategy `mapstructure:"strategies"`
	OpenGraphFallback bool              `mapstructure:"opengraph_fallback"`
	RateLimit         RateLimitConfig   `mapstructure:"rate_limit"`
}

// RateLimitConfig paces extraction attempts per source domain.
type RateLimitConfig struct {
	DefaultRPS   float64      `mapstructure:"default_rps"`
	DefaultBurst int          `mapstructure:"default_burst"`
	Overrides    []DomainRate `mapstructure:"overrides"`
}

// DomainRate overrides the rate for a domain and its subdomains. Viper splits map
// keys on dots, so overrides are a list rather than a domain-keyed map.
type DomainRate struct {
	Domain string  `mapstructure:"domain"`
	RPS    float64 `mapstructure:"rps"`
}

// ArchiveConfig points at the Postgres extraction archive. Empty DSN disables it.
type ArchiveConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// SnapshotConfig sets where completed job snapshots are written. Empty backend
// disables snapshots.
type SnapshotConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion notifications. Empty topic disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from .env, disk, and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "INGEST_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("store.redis_url", "INGEST_STORE_REDIS_URL", "REDIS_URL"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Extractor.Strategies) == 0 {
		cfg.Extractor.Strategies = extractor.DefaultStrategies()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.health_timeout", 2*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("store.backend", BackendRedis)
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.badger_path", "data/badger")
	v.SetDefault("store.job_ttl", time.Hour)
	v.SetDefault("store.cache_ttl", 24*time.Hour)
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.redis_key", "ingest:queue")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.drain_timeout", 30*time.Second)
	v.SetDefault("extractor.binary", "yt-dlp")
	v.SetDefault("extractor.attempt_timeout", 2*time.Minute)
	v.SetDefault("extractor.backoff_min", extractor.DefaultBackoffMin)
	v.SetDefault("extractor.backoff_max", extractor.DefaultBackoffMax)
	v.SetDefault("extractor.protected_domains", extractor.DefaultProtectedDomains)
	v.SetDefault("extractor.opengraph_fallback", false)
	v.SetDefault("extractor.rate_limit.default_rps", 2.0)
	v.SetDefault("extractor.rate_limit.default_burst", 2)
	v.SetDefault("archive.dsn", "")
	v.SetDefault("archive.table", "extractions")
	v.SetDefault("archive.max_conns", 4)
	v.SetDefault("archive.min_conns", 0)
	v.SetDefault("archive.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("snapshot.backend", "")
	v.SetDefault("snapshot.bucket", "")
	v.SetDefault("snapshot.dir", "data/snapshots")
	v.SetDefault("snapshot.prefix", "results")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
	case BackendBadger:
		if c.Store.BadgerPath == "" {
			return fmt.Errorf("store.badger_path is required for the badger backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	switch c.Queue.Backend {
	case BackendMemory:
		if c.Queue.Depth <= 0 {
			return fmt.Errorf("queue.depth must be > 0")
		}
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis queue")
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Extractor.BackoffMin < 0 || c.Extractor.BackoffMax < c.Extractor.BackoffMin {
		return fmt.Errorf("extractor.backoff_max must be >= extractor.backoff_min >= 0")
	}
	for i, o := range c.Extractor.RateLimit.Overrides {
		if o.Domain == "" {
			return fmt.Errorf("extractor.rate_limit.overrides[%d].domain is required", i)
		}
	}
	for i, s := range c.Extractor.Strategies {
		if s.Name == "" {
			return fmt.Errorf("extractor.strategies[%d].name is required", i)
		}
	}
	switch c.Snapshot.Backend {
	case "", BackendMemory:
	case BackendGCS:
		if c.Snapshot.Bucket == "" {
			return fmt.Errorf("snapshot.bucket is required for the gcs backend")
		}
	case BackendLocal:
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir is required for the local backend")
		}
	default:
		return fmt.Errorf("snapshot.backend %q is not supported", c.Snapshot.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// ExtractorSettings converts the extractor section into the fallback chain config.
func (c Config) ExtractorSettings() extractor.Config {
	cfg := extractor.Config{
		Strategies:       append([]ingest.Strategy(nil), c.Extractor.Strategies...),
		BackoffMin:       c.Extractor.BackoffMin,
		BackoffMax:       c.Extractor.BackoffMax,
		ProtectedDomains: append([]string(nil), c.Extractor.ProtectedDomains...),
	}
	if c.Extractor.OpenGraphFallback {
		cfg.Strategies = append(cfg.Strategies, extractor.OpenGraphStrategy())
	}
	return cfg
}

// RateLimitSettings converts the rate limit section for the limiter.
func (c Config) RateLimitSettings() ratelimit.Config {
	rl := c.Extractor.RateLimit
	overrides := make(map[string]float64, len(rl.Overrides))
	for _, o := range rl.Overrides {
		overrides[o.Domain] = o.RPS
	}
	return ratelimit.Config{
		DefaultRPS:   rl.DefaultRPS,
		DefaultBurst: rl.DefaultBurst,
		Overrides:    overrides,
		Tracked:      append([]string(nil), c.Extractor.ProtectedDomains...),
	}
}
