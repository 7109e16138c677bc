// Package config loads and validates zbrowser configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/zbrowser/internal/scraper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Instagram InstagramConfig `mapstructure:"instagram"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ScraperConfig sizes the worker pool and chooses what the browser skips.
type ScraperConfig struct {
	InitialURL         string   `mapstructure:"initial_url"`
	Workers            int      `mapstructure:"workers"`
	BlockResources     []string `mapstructure:"block_resources"`
	TaskTimeoutSeconds int      `mapstructure:"task_timeout_seconds"`
}

// BrowserConfig configures the local Chrome launch and navigation pacing.
type BrowserConfig struct {
	Headless          bool    `mapstructure:"headless"`
	UserAgent         string  `mapstructure:"user_agent"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
}

// RedditConfig tunes the Reddit collector.
type RedditConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Concurrency   int    `mapstructure:"concurrency"`
	LoadTimeoutMs int    `mapstructure:"load_timeout_ms"`
}

// InstagramConfig holds Instagram credentials and the session cache key.
type InstagramConfig struct {
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	SessionKey string `mapstructure:"session_key"`
}

// TwitterConfig holds X credentials, the session cache key and how far the
// search feed is scrolled.
type TwitterConfig struct {
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	SessionKey  string `mapstructure:"session_key"`
	ScrollSteps int    `mapstructure:"scroll_steps"`
}

// StorageConfig selects the blob store for snapshots and sessions.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// MetricsConfig controls the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig toggles OpenTelemetry tracing. Exporter is one of none,
// stdout or gcp; gcp needs ProjectID.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Exporter    string `mapstructure:"exporter"`
	ProjectID   string `mapstructure:"project_id"`
}

// LoggingConfig selects the zap encoder and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZBROWSER")
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
	v.SetDefault("scraper.initial_url", "")
	v.SetDefault("scraper.workers", 4)
	v.SetDefault("scraper.block_resources", []string{"image", "font", "media"})
	v.SetDefault("scraper.task_timeout_seconds", 120)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.domain_qps", 1.0)
	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.concurrency", 4)
	v.SetDefault("reddit.load_timeout_ms", 15000)
	v.SetDefault("instagram.username", "")
	v.SetDefault("instagram.password", "")
	v.SetDefault("instagram.session_key", "")
	v.SetDefault("twitter.username", "")
	v.SetDefault("twitter.password", "")
	v.SetDefault("twitter.session_key", "")
	v.SetDefault("twitter.scroll_steps", 30)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "zbrowser")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be > 0")
	}
	if c.Scraper.TaskTimeoutSeconds < 0 {
		return fmt.Errorf("scraper.task_timeout_seconds must be >= 0")
	}
	if _, err := scraper.ParseBlockResources(c.Scraper.BlockResources); err != nil {
		return fmt.Errorf("scraper.block_resources: %w", err)
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.DomainQPS < 0 {
		return fmt.Errorf("browser.domain_qps must be >= 0")
	}
	if c.Reddit.Concurrency <= 0 {
		return fmt.Errorf("reddit.concurrency must be > 0")
	}
	if c.Twitter.ScrollSteps < 0 {
		return fmt.Errorf("twitter.scroll_steps must be >= 0")
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set when storage.provider is local")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider %q is not one of memory, local, gcs", c.Storage.Provider)
	}
	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name must be set when tracing is enabled")
		}
		switch c.Tracing.Exporter {
		case "", "none", "stdout":
		case "gcp":
			if c.Tracing.ProjectID == "" {
				return fmt.Errorf("tracing.project_id must be set when tracing.exporter is gcp")
			}
		default:
			return fmt.Errorf("tracing.exporter %q is not one of none, stdout, gcp", c.Tracing.Exporter)
		}
	}
	return nil
}

// ScraperSettings converts the scraper section into scraper.Config.
func (c Config) ScraperSettings() (scraper.Config, error) {
	blocked, err := scraper.ParseBlockResources(c.Scraper.BlockResources)
	if err != nil {
		return scraper.Config{}, err
	}
	return scraper.Config{
		InitialURL:     c.Scraper.InitialURL,
		Workers:        c.Scraper.Workers,
		BlockResources: blocked,
		TaskTimeout:    time.Duration(c.Scraper.TaskTimeoutSeconds) * time.Second,
	}, nil
}

// NavigationTimeout returns the per-navigation budget.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// RedditLoadTimeout returns how long collectors wait for Reddit content to appear.
func (c Config) RedditLoadTimeout() time.Duration {
	return time.Duration(c.Reddit.LoadTimeoutMs) * time.Millisecond
}
