// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/tubeshelf/internal/library"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Auth     AuthConfig       `mapstructure:"auth"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Library  LibraryConfig    `mapstructure:"library"`
	Defaults library.Settings `mapstructure:"defaults"`
	Fetcher  FetcherConfig    `mapstructure:"fetcher"`
	Limiter  LimiterConfig    `mapstructure:"limiter"`
	PubSub   PubSubConfig     `mapstructure:"pubsub"`
	Progress ProgressConfig   `mapstructure:"progress"`
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

// LibraryConfig says where snapshots live. A non-empty GCSBucket takes
// precedence over SnapshotPath.
type LibraryConfig struct {
	SnapshotPath string `mapstructure:"snapshot_path"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	GCSObject    string `mapstructure:"gcs_object"`
	QueueHistory int    `mapstructure:"queue_history"`
}

// FetcherConfig configures the two metadata sources.
type FetcherConfig struct {
	UserAgent               string `mapstructure:"user_agent"`
	OEmbedEndpoint          string `mapstructure:"oembed_endpoint"`
	VideoInfoEndpoint       string `mapstructure:"video_info_endpoint"`
	OEmbedTimeoutSeconds    int    `mapstructure:"oembed_timeout_seconds"`
	VideoInfoTimeoutSeconds int    `mapstructure:"video_info_timeout_seconds"`
}

// LimiterConfig sets how long the limiter sleeps when a window is full.
type LimiterConfig struct {
	SecondBackoffMs int `mapstructure:"second_backoff_ms"`
	MinuteBackoffMs int `mapstructure:"minute_backoff_ms"`
}

// PubSubConfig holds metadata for enrichment notifications. An empty
// TopicName disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig sizes the in-memory event history.
type ProgressConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TUBESHELF")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("library.snapshot_path", "data/library.json")
	v.SetDefault("library.gcs_object", "tubeshelf/library.json")
	v.SetDefault("library.queue_history", 200)
	v.SetDefault("defaults.rate_limit_per_second", 20)
	v.SetDefault("defaults.rate_limit_per_minute", 150)
	v.SetDefault("defaults.duplicate_policy", string(library.PolicyBlockCategory))
	v.SetDefault("defaults.default_category", "Unsorted")
	v.SetDefault("defaults.category_order_strategy", "recent")
	v.SetDefault("fetcher.user_agent", "tubeshelf/0.1")
	v.SetDefault("fetcher.oembed_endpoint", "https://www.youtube.com/oembed")
	v.SetDefault("fetcher.video_info_endpoint", "https://www.youtube.com/get_video_info")
	v.SetDefault("fetcher.oembed_timeout_seconds", 4)
	v.SetDefault("fetcher.video_info_timeout_seconds", 5)
	v.SetDefault("limiter.second_backoff_ms", 50)
	v.SetDefault("limiter.minute_backoff_ms", 1000)
	v.SetDefault("progress.history_size", 500)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Library.GCSBucket == "" && c.Library.SnapshotPath == "" {
		return fmt.Errorf("library.snapshot_path or library.gcs_bucket must be set")
	}
	if c.Defaults.RateLimitPerSecond <= 0 {
		return fmt.Errorf("defaults.rate_limit_per_second must be > 0")
	}
	if c.Defaults.RateLimitPerMinute <= 0 {
		return fmt.Errorf("defaults.rate_limit_per_minute must be > 0")
	}
	if !c.Defaults.DuplicatePolicy.Valid() {
		return fmt.Errorf("defaults.duplicate_policy %q is not supported", c.Defaults.DuplicatePolicy)
	}
	if strings.TrimSpace(c.Defaults.DefaultCategory) == "" {
		return fmt.Errorf("defaults.default_category must be set")
	}
	if c.Fetcher.OEmbedTimeoutSeconds <= 0 || c.Fetcher.VideoInfoTimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher timeouts must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// OEmbedTimeout is the per-request budget for the oEmbed source.
func (c Config) OEmbedTimeout() time.Duration {
	return time.Duration(c.Fetcher.OEmbedTimeoutSeconds) * time.Second
}

// VideoInfoTimeout is the per-request budget for the detail source.
func (c Config) VideoInfoTimeout() time.Duration {
	return time.Duration(c.Fetcher.VideoInfoTimeoutSeconds) * time.Second
}

// SecondBackoff is the limiter sleep when the 1-second window is full.
func (c Config) SecondBackoff() time.Duration {
	return time.Duration(c.Limiter.SecondBackoffMs) * time.Millisecond
}

// MinuteBackoff is the limiter sleep when the 60-second window is full.
func (c Config) MinuteBackoff() time.Duration {
	return time.Duration(c.Limiter.MinuteBackoffMs) * time.Millisecond
}
