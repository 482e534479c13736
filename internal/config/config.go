// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HRFINDER_SERVER_PORT.
const EnvPrefix = "HRFINDER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Search    SearchConfig    `mapstructure:"search"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	DB        DBConfig        `mapstructure:"db"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
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

// CrawlConfig bounds the site crawl and its page fetches.
type CrawlConfig struct {
	MaxPages       int    `mapstructure:"max_pages"`
	Concurrency    int    `mapstructure:"concurrency"`
	DelayMillis    int    `mapstructure:"delay_ms"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	MaxRefusals    int    `mapstructure:"max_refusals"`
}

// SearchConfig points the rendered searches at a results page.
type SearchConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ResultSelector string `mapstructure:"result_selector"`
}

// HeadlessConfig configures the browser used for searches and the crawl
// fallback.
type HeadlessConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	NavTimeoutSec      int    `mapstructure:"nav_timeout_seconds"`
	SettleMillis       int    `mapstructure:"settle_ms"`
	ExecPath           string `mapstructure:"exec_path"`
	NoSandbox          bool   `mapstructure:"no_sandbox"`
	CrawlFallback      bool   `mapstructure:"crawl_fallback"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
}

// RateLimitConfig sets the optional per-host token bucket.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	BufferSize  int  `mapstructure:"buffer_size"`
	BatchEvents int  `mapstructure:"batch_events"`
	BatchMillis int  `mapstructure:"batch_ms"`
}

// RunsConfig selects where run history is kept and sizes the background
// worker pool for queued runs.
type RunsConfig struct {
	Backend    string `mapstructure:"backend"`
	Workers    int    `mapstructure:"workers"`
	QueueDepth int    `mapstructure:"queue_depth"`
}

// ArchiveConfig selects where JSON reports are written.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// Backend names shared by the runs, archive and pubsub sections.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"
)

// Load builds a Config from disk/environment. With an empty path it looks
// for an optional hrfinder.{yaml,json,toml} in the working directory and
// /etc/hrfinder.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// Cloud Run injects PORT.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("hrfinder")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hrfinder/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 180)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.concurrency", 8)
	v.SetDefault("crawl.delay_ms", 1000)
	v.SetDefault("crawl.timeout_seconds", 10)
	v.SetDefault("crawl.user_agent", "hr-contact-discovery/0.1 (+https://github.com/JakeFAU/hr-contact-discovery)")
	v.SetDefault("crawl.ignore_robots", false)
	v.SetDefault("crawl.max_body_bytes", 5*1024*1024)
	v.SetDefault("crawl.max_refusals", 5)
	v.SetDefault("search.base_url", "https://www.google.com/search")
	v.SetDefault("search.result_selector", "div.g a")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_ms", 500)
	v.SetDefault("headless.no_sandbox", false)
	v.SetDefault("headless.crawl_fallback", false)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 2)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_events", 64)
	v.SetDefault("progress.batch_ms", 250)
	v.SetDefault("runs.backend", BackendMemory)
	v.SetDefault("runs.workers", 4)
	v.SetDefault("runs.queue_depth", 64)
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.dir", "data/reports")
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("archive.content_type", "application/json")
	v.SetDefault("pubsub.backend", BackendNone)
	v.SetDefault("pubsub.topic_name", "hr-discoveries")
	v.SetDefault("db.max_open_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.DelayMillis < 0 {
		return fmt.Errorf("crawl.delay_ms must be >= 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be > 0 when rate limiting is enabled")
	}
	if c.Runs.Workers <= 0 || c.Runs.QueueDepth <= 0 {
		return fmt.Errorf("runs.workers and runs.queue_depth must be > 0")
	}
	switch c.Runs.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres runs backend")
		}
	default:
		return fmt.Errorf("runs.backend %q is not supported", c.Runs.Backend)
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local archive backend")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.PubSub.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("pubsub.backend %q is not supported", c.PubSub.Backend)
	}
	return nil
}

// CrawlDelay is the politeness pause between crawl batches.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Crawl.DelayMillis) * time.Millisecond
}

// FetchTimeout bounds a single page fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawl.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one API request, crawl included.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
