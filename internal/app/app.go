// Package app builds the long-lived services shared by the CLI commands and
// shuts them down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/config"
	"github.com/JakeFAU/zbrowser/internal/driver"
	"github.com/JakeFAU/zbrowser/internal/driver/chrome"
	"github.com/JakeFAU/zbrowser/internal/logging"
	"github.com/JakeFAU/zbrowser/internal/scraper"
	"github.com/JakeFAU/zbrowser/internal/server"
	"github.com/JakeFAU/zbrowser/internal/snapshot"
	"github.com/JakeFAU/zbrowser/internal/social"
	"github.com/JakeFAU/zbrowser/internal/storage"
	gcsstorage "github.com/JakeFAU/zbrowser/internal/storage/gcs"
	localstorage "github.com/JakeFAU/zbrowser/internal/storage/local"
	memorystorage "github.com/JakeFAU/zbrowser/internal/storage/memory"
	"github.com/JakeFAU/zbrowser/internal/telemetry"
)

// App holds the services built from one configuration.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	scraper   *scraper.Scraper
	store     storage.BlobStore
	snapshots *snapshot.Sink
	reddit    *social.Reddit
	instagram *social.Instagram
	twitter   *social.Twitter

	gcs       *gcsstorage.BlobStore
	telemetry *telemetry.Provider
	listener  *server.Server
	addr      string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type buildOptions struct {
	driver driver.Driver
	logger *zap.Logger
}

// Option customizes Build.
type Option func(*buildOptions)

// WithDriver replaces the Chrome driver.
func WithDriver(d driver.Driver) Option {
	return func(o *buildOptions) { o.driver = d }
}

// WithLogger replaces the logger built from the logging section.
func WithLogger(l *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// Build creates every service. On error, whatever was already built is closed.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	a := &App{cfg: cfg, logger: logger}

	if err := a.build(ctx, o); err != nil {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("cleanup after failed build", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o buildOptions) error {
	a.logger.Info("building application", zap.String("storage", a.cfg.Storage.Provider))

	var tracer trace.Tracer
	if a.cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: a.cfg.Tracing.ServiceName,
			Exporter:    a.cfg.Tracing.Exporter,
			ProjectID:   a.cfg.Tracing.ProjectID,
		})
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		a.telemetry = tp
		tracer = tp.Tracer("github.com/JakeFAU/zbrowser/internal/scraper")
	}

	store, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	a.store = store

	a.snapshots, err = snapshot.New(store, snapshot.Config{
		Prefix:      a.cfg.Storage.Prefix,
		ContentType: a.cfg.Storage.ContentType,
	}, snapshot.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("snapshot sink: %w", err)
	}

	drv := o.driver
	if drv == nil {
		drv = chrome.New(chrome.Config{
			Headless:          a.cfg.Browser.Headless,
			UserAgent:         a.cfg.Browser.UserAgent,
			NavigationTimeout: a.cfg.NavigationTimeout(),
			DomainQPS:         a.cfg.Browser.DomainQPS,
		}, a.logger)
	}
	sc, err := a.cfg.ScraperSettings()
	if err != nil {
		return err
	}
	scraperOpts := []scraper.Option{scraper.WithLogger(a.logger)}
	if tracer != nil {
		scraperOpts = append(scraperOpts, scraper.WithTracer(tracer))
	}
	a.scraper, err = scraper.New(drv, sc, scraperOpts...)
	if err != nil {
		return fmt.Errorf("scraper init failed: %w", err)
	}

	a.reddit = social.NewReddit(a.scraper, social.RedditConfig{
		BaseURL:     a.cfg.Reddit.BaseURL,
		Concurrency: a.cfg.Reddit.Concurrency,
		LoadTimeout: a.cfg.RedditLoadTimeout(),
	}, a.logger)
	a.instagram = social.NewInstagram(a.scraper, store, social.InstagramConfig{
		Username:    a.cfg.Instagram.Username,
		Password:    a.cfg.Instagram.Password,
		SessionKey:  a.cfg.Instagram.SessionKey,
		UserAgent:   a.cfg.Browser.UserAgent,
		LoadTimeout: a.cfg.NavigationTimeout(),
	}, a.logger)
	a.twitter = social.NewTwitter(a.scraper, store, social.TwitterConfig{
		Username:    a.cfg.Twitter.Username,
		Password:    a.cfg.Twitter.Password,
		SessionKey:  a.cfg.Twitter.SessionKey,
		UserAgent:   a.cfg.Browser.UserAgent,
		LoadTimeout: a.cfg.NavigationTimeout(),
		ScrollSteps: a.cfg.Twitter.ScrollSteps,
	}, a.logger)

	if a.cfg.Metrics.Addr != "" {
		a.listener = server.New(a.logger, func() bool { return !a.closed.Load() })
		addr, err := a.listener.Start(a.cfg.Metrics.Addr)
		if err != nil {
			a.listener = nil
			return err
		}
		a.addr = addr
	}
	return nil
}

func (a *App) setupStorage(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local storage init failed: %w", err)
		}
		return store, nil
	case "gcs":
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs storage init failed: %w", err)
		}
		a.gcs = store
		return store, nil
	default:
		return memorystorage.NewBlobStore(), nil
	}
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Scraper returns the browser engine.
func (a *App) Scraper() *scraper.Scraper { return a.scraper }

// Store returns the configured blob store.
func (a *App) Store() storage.BlobStore { return a.store }

// Snapshots returns the HTML snapshot sink.
func (a *App) Snapshots() *snapshot.Sink { return a.snapshots }

// Reddit returns the Reddit collector.
func (a *App) Reddit() *social.Reddit { return a.reddit }

// Instagram returns the Instagram collector.
func (a *App) Instagram() *social.Instagram { return a.instagram }

// Twitter returns the X collector.
func (a *App) Twitter() *social.Twitter { return a.twitter }

// MetricsAddr returns the bound observability listener address, or "" when
// the listener is disabled.
func (a *App) MetricsAddr() string { return a.addr }

// Close releases the browser, the listener, storage clients and telemetry.
// Later calls return the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		var errs []error
		if a.scraper != nil {
			if err := a.scraper.Close(); err != nil {
				errs = append(errs, fmt.Errorf("scraper close: %w", err))
			}
		}
		if a.listener != nil {
			if err := a.listener.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if a.gcs != nil {
			if err := a.gcs.Close(); err != nil {
				errs = append(errs, fmt.Errorf("gcs close: %w", err))
			}
		}
		if a.telemetry != nil {
			if err := a.telemetry.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
			}
		}
		_ = a.logger.Sync()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
