// Package scraper runs browser automation tasks on a pool of driver-managed
// workers. Each task receives its own Context, which is closed exactly once when
// the task ends, however it ends.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/driver"
	"github.com/JakeFAU/zbrowser/internal/metrics"
	"github.com/JakeFAU/zbrowser/internal/registry"
)

const tracerName = "github.com/JakeFAU/zbrowser/internal/scraper"

// Config controls a Scraper.
type Config struct {
	// InitialURL optionally points at a remote browser endpoint.
	InitialURL string
	// Workers bounds concurrently running tasks. Values below 1 become 1.
	Workers int
	// BlockResources lists request categories the browser suppresses.
	BlockResources []BlockResource
	// TaskTimeout, when positive, caps every Execute call in addition to the caller's context.
	TaskTimeout time.Duration
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithRegistry shares reg between scrapers instead of giving each its own.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Scraper) {
		s.registry = reg
	}
}

// WithLogger sets the logger used by the scraper and its contexts.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used for per-task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scraper) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Scraper owns one driver-side browser instance and its worker pool.
type Scraper struct {
	drv      driver.Driver
	handle   int64
	cfg      Config
	registry *registry.Registry
	logger   *zap.Logger
	tracer   trace.Tracer

	mu        sync.RWMutex
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New starts a browser instance on d configured by cfg.
func New(d driver.Driver, cfg Config, opts ...Option) (*Scraper, error) {
	if d == nil {
		return nil, errors.New("nil driver")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	s := &Scraper{
		drv:    d,
		cfg:    cfg,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scraper")
	if s.registry == nil {
		s.registry = registry.New(s.logger.Named("registry"))
	}

	tokens := make([]string, 0, len(cfg.BlockResources))
	for _, r := range cfg.BlockResources {
		parsed, err := ParseBlockResource(r.String())
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, parsed.String())
	}
	handle, err := d.NewScraper(driver.Options{
		InitialURL:     cfg.InitialURL,
		Workers:        cfg.Workers,
		BlockResources: tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create browser instance: %w", err)
	}
	s.handle = handle

	s.logger.Info("scraper ready",
		zap.Int64("handle", handle),
		zap.Int("workers", cfg.Workers),
		zap.Strings("block_resources", tokens),
		zap.Bool("remote", cfg.InitialURL != ""),
	)
	return s, nil
}

// Handle returns the driver handle backing s.
func (s *Scraper) Handle() int64 {
	return s.handle
}

// Workers returns the effective worker count.
func (s *Scraper) Workers() int {
	return s.cfg.Workers
}

// Execute runs task on a worker and returns its string result.
func (s *Scraper) Execute(ctx context.Context, task func(*Context) (string, error)) (string, error) {
	return Execute(ctx, s, task)
}

// Close shuts the browser instance down. It waits for in-flight driver calls,
// including ones whose callers already gave up, then closes the driver handle
// once. Later calls return nil.
func (s *Scraper) Close() error {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.inflight.Wait()
		if err := s.drv.Close(s.handle); err != nil {
			s.closeErr = fmt.Errorf("close browser instance: %w", err)
		}
		s.logger.Info("scraper closed", zap.Int64("handle", s.handle), zap.Error(s.closeErr))
	})
	if !first {
		return nil
	}
	return s.closeErr
}

// begin reserves an in-flight slot unless the scraper is closed.
func (s *Scraper) begin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

type slot[T any] struct {
	mu    sync.Mutex
	set   bool
	value T
	err   error
}

func (r *slot[T]) store(v T, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value, r.err, r.set = v, err, true
}

func (r *slot[T]) load() (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.set, r.err
}

type callResult struct {
	out string
	err error
}

// Execute runs task on one of s's workers and returns the value it produced.
//
// The driver call runs on its own goroutine. If ctx (or the configured
// TaskTimeout) expires first, the driver context is aborted, the task's
// registration is dropped and ErrTaskAborted is returned; the abandoned call
// is still awaited by Close.
func Execute[T any](ctx context.Context, s *Scraper, task func(*Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	if !s.begin() {
		metrics.ObserveTask(metrics.StatusRejected, 0)
		return zero, ErrClosed
	}

	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	result := &slot[T]{}
	id := s.registry.Register(func(contextID int64) string {
		return runTask(s, contextID, task, result)
	})

	ctx, span := s.tracer.Start(ctx, "scraper.Execute", trace.WithAttributes(attribute.Int64("task_id", id)))
	defer span.End()
	logger := s.logger.With(zap.Int64("task_id", id))

	metrics.IncInflightTasks()
	done := make(chan callResult, 1)
	go func() {
		defer s.inflight.Done()
		defer metrics.DecInflightTasks()
		out, err := s.drv.Execute(s.handle, id, s.registry.Trampoline())
		done <- callResult{out: out, err: err}
	}()

	finish := func(status string, err error) {
		metrics.ObserveTask(status, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.SetAttributes(attribute.String("status", status))
	}

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		s.drv.Abort(id)
		s.registry.Forget(id)
		err := fmt.Errorf("%w: task %d: %w", ErrTaskAborted, id, ctx.Err())
		logger.Warn("task aborted", zap.Error(ctx.Err()))
		finish(metrics.StatusAborted, err)
		return zero, err
	}

	if res.err != nil {
		s.registry.Forget(id)
		logger.Error("driver failed to run task", zap.Error(res.err))
		err := fmt.Errorf("%w: task %d", ErrTaskFailed, id)
		finish(metrics.StatusFailed, err)
		return zero, err
	}

	value, ok, taskErr := result.load()
	switch {
	case !ok:
		err := fmt.Errorf("%w: task %d produced no result", ErrTaskFailed, id)
		logger.Error("task produced no result")
		finish(metrics.StatusFailed, err)
		return zero, err
	case errors.Is(taskErr, ErrTaskPanicked):
		err := fmt.Errorf("task %d: %w", id, taskErr)
		finish(metrics.StatusPanicked, err)
		return zero, err
	case taskErr != nil:
		err := fmt.Errorf("task %d: %w", id, taskErr)
		finish(metrics.StatusFailed, err)
		return zero, err
	}

	finish(metrics.StatusSucceeded, nil)
	return value, nil
}

// runTask is the body registered for each task. It always closes the Context
// and never lets a panic escape into the driver.
func runTask[T any](s *Scraper, contextID int64, task func(*Context) (T, error), result *slot[T]) (out string) {
	c := newContext(contextID, s.drv, s.logger)
	defer c.Close()
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("task panicked",
				zap.Int64("task_id", contextID),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			var zero T
			result.store(zero, fmt.Errorf("%w: %v", ErrTaskPanicked, p))
			out = ""
		}
	}()

	v, err := task(c)
	result.store(v, err)
	if str, ok := any(v).(string); ok && err == nil {
		return str
	}
	return ""
}
