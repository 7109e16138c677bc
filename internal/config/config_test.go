package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/zbrowser/internal/scraper"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
scraper:
  initial_url: ws://chrome:9222/devtools/browser/abc
  workers: 6
  block_resources: [image, stylesheet]
  task_timeout_seconds: 45
browser:
  headless: false
  user_agent: real-agent
  nav_timeout_seconds: 20
  domain_qps: 0.5
reddit:
  base_url: https://old.reddit.com
  concurrency: 2
  load_timeout_ms: 5000
instagram:
  username: someone
  password: hunter2
  session_key: sessions/ig.json
twitter:
  username: someone-else
  scroll_steps: 12
storage:
  provider: gcs
  gcs_bucket: bucket
  prefix: pages
  content_type: text/plain
metrics:
  addr: ":9100"
tracing:
  enabled: true
  service_name: zb-test
  exporter: stdout
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Scraper.Workers != 6 || cfg.Scraper.InitialURL == "" {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if cfg.Browser.Headless || cfg.Browser.UserAgent != "real-agent" || cfg.Browser.DomainQPS != 0.5 {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if cfg.Reddit.BaseURL != "https://old.reddit.com" || cfg.Reddit.Concurrency != 2 {
		t.Fatalf("expected reddit overrides to apply: %+v", cfg.Reddit)
	}
	if cfg.Instagram.Username != "someone" || cfg.Instagram.SessionKey != "sessions/ig.json" {
		t.Fatalf("expected instagram overrides to apply: %+v", cfg.Instagram)
	}
	if cfg.Twitter.Username != "someone-else" || cfg.Twitter.ScrollSteps != 12 || cfg.Twitter.SessionKey != "" {
		t.Fatalf("expected twitter overrides to apply: %+v", cfg.Twitter)
	}
	if cfg.Storage.Provider != "gcs" || cfg.Storage.GCSBucket != "bucket" {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	if cfg.Metrics.Addr != ":9100" || !cfg.Tracing.Enabled || cfg.Logging.Development {
		t.Fatalf("expected ambient overrides to apply")
	}

	sc, err := cfg.ScraperSettings()
	if err != nil {
		t.Fatalf("ScraperSettings() error = %v", err)
	}
	if sc.TaskTimeout != 45*time.Second {
		t.Fatalf("expected task timeout 45s, got %v", sc.TaskTimeout)
	}
	want := []scraper.BlockResource{scraper.ResourceImage, scraper.ResourceStylesheet}
	if len(sc.BlockResources) != 2 || sc.BlockResources[0] != want[0] || sc.BlockResources[1] != want[1] {
		t.Fatalf("unexpected block resources %v", sc.BlockResources)
	}
	if got := cfg.NavigationTimeout(); got != 20*time.Second {
		t.Fatalf("expected nav timeout 20s, got %v", got)
	}
	if got := cfg.RedditLoadTimeout(); got != 5*time.Second {
		t.Fatalf("expected reddit timeout 5s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Scraper.Workers)
	}
	if cfg.Storage.Provider != "memory" {
		t.Fatalf("expected memory storage, got %q", cfg.Storage.Provider)
	}
	if !cfg.Browser.Headless {
		t.Fatal("expected headless by default")
	}
	if cfg.Reddit.BaseURL != "https://www.reddit.com" {
		t.Fatalf("unexpected reddit base url %q", cfg.Reddit.BaseURL)
	}
	if cfg.Twitter.ScrollSteps != 30 {
		t.Fatalf("expected 30 scroll steps, got %d", cfg.Twitter.ScrollSteps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Scraper: ScraperConfig{Workers: 1},
		Browser: BrowserConfig{NavTimeoutSeconds: 10},
		Reddit:  RedditConfig{Concurrency: 1},
		Storage: StorageConfig{Provider: "memory"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid workers", func(c *Config) { c.Scraper.Workers = 0 }, "scraper.workers"},
		{"negative task timeout", func(c *Config) { c.Scraper.TaskTimeoutSeconds = -1 }, "scraper.task_timeout_seconds"},
		{"unknown block resource", func(c *Config) { c.Scraper.BlockResources = []string{"xhr"} }, "scraper.block_resources"},
		{"invalid nav timeout", func(c *Config) { c.Browser.NavTimeoutSeconds = 0 }, "browser.nav_timeout_seconds"},
		{"negative qps", func(c *Config) { c.Browser.DomainQPS = -1 }, "browser.domain_qps"},
		{"invalid reddit concurrency", func(c *Config) { c.Reddit.Concurrency = 0 }, "reddit.concurrency"},
		{"negative scroll steps", func(c *Config) { c.Twitter.ScrollSteps = -1 }, "twitter.scroll_steps"},
		{"local without dir", func(c *Config) { c.Storage = StorageConfig{Provider: "local"} }, "storage.base_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage = StorageConfig{Provider: "gcs"} }, "storage.gcs_bucket"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"tracing without name", func(c *Config) { c.Tracing.Enabled = true }, "tracing.service_name"},
		{"gcp tracing without project", func(c *Config) {
			c.Tracing = TracingConfig{Enabled: true, ServiceName: "zb", Exporter: "gcp"}
		}, "tracing.project_id"},
		{"unknown exporter", func(c *Config) {
			c.Tracing = TracingConfig{Enabled: true, ServiceName: "zb", Exporter: "jaeger"}
		}, "tracing.exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
