// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlConfig governs checkpointing and crawl pipeline behavior.
type CrawlConfig struct {
	// Genesis is the fetch floor for members with no crawl history
	// (RFC 3339).
	Genesis string `mapstructure:"genesis"`
	// BatchSize bounds concurrent member fetches within one list.
	BatchSize int `mapstructure:"batch_size"`
	// PageSize is tweets per API page (API ceiling is 100).
	PageSize int `mapstructure:"page_size"`
	// MaxPages caps pages fetched per member per invocation.
	MaxPages int `mapstructure:"max_pages"`
	// ChunkSize caps writes per storage transaction.
	ChunkSize int `mapstructure:"chunk_size"`
	// StopAtCursor ends pagination once pages walk past the resume cursor.
	StopAtCursor bool `mapstructure:"stop_at_cursor"`
}

// GenesisTime parses the configured genesis timestamp.
func (c CrawlConfig) GenesisTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Genesis)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse crawl.genesis: %w", err)
	}
	return t.UTC(), nil
}

// TwitterConfig configures the API client.
type TwitterConfig struct {
	BearerToken       string  `mapstructure:"bearer_token"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// ClientTimeout returns the HTTP client timeout as a duration.
func (c TwitterConfig) ClientTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// ArchiveConfig sets the destination for raw API page archival.
type ArchiveConfig struct {
	// Provider is "gcs" or "noop".
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig holds metadata for cycle completion notifications.
type EventsConfig struct {
	// Provider is "pubsub" or "noop".
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// SchedulerConfig controls the serve-mode cron schedule.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Spec is a cron expression; the default crawls hourly.
	Spec string `mapstructure:"spec"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name ("debug", "info", "warn", "error").
	Level string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REPLYCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if _, err := c.Crawl.GenesisTime(); err != nil {
		return err
	}
	if c.Crawl.PageSize < 1 || c.Crawl.PageSize > 100 {
		return fmt.Errorf("crawl.page_size must be in [1,100], got %d", c.Crawl.PageSize)
	}
	if c.Crawl.ChunkSize < 1 {
		return fmt.Errorf("crawl.chunk_size must be positive, got %d", c.Crawl.ChunkSize)
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.provider is 'postgres' but db.dsn is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.provider is 'gcs' but archive.gcs_bucket is not set")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.Events.Provider {
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.TopicID == "" {
			return fmt.Errorf("events.provider is 'pubsub' but project_id or topic_id is not set")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown events provider: %s", c.Events.Provider)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.genesis", "2020-01-01T00:00:00Z")
	v.SetDefault("crawl.batch_size", 10)
	v.SetDefault("crawl.page_size", 100)
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.chunk_size", 500)
	v.SetDefault("crawl.stop_at_cursor", true)
	v.SetDefault("twitter.requests_per_second", 1)
	v.SetDefault("twitter.burst", 5)
	v.SetDefault("twitter.timeout_seconds", 15)
	v.SetDefault("twitter.max_retries", 3)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("events.provider", "noop")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "@hourly")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}
