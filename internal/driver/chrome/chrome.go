// Package chrome implements driver.Driver on top of chromedp. Every scraper handle
// owns one browser (launched locally or reached over a DevTools websocket) and a
// fixed set of worker goroutines; every task runs in a fresh tab inside its own
// browser context, so cookies and storage never leak between tasks.
package chrome

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/driver"
	"github.com/JakeFAU/zbrowser/internal/policy/ratelimit"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

// Config controls browser launch and per-operation limits.
type Config struct {
	Headless          bool
	UserAgent         string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	// DomainQPS paces navigations per host. Zero disables pacing.
	DomainQPS float64
	// ExecOptions are appended to the local allocator flags.
	ExecOptions []chromedp.ExecAllocatorOption
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	return c
}

// Driver runs browser automation through chromedp.
type Driver struct {
	cfg     Config
	logger  *zap.Logger
	limiter *ratelimit.Limiter

	nextHandle atomic.Int64
	instances  sync.Map // int64 -> *instance
	sessions   sync.Map // int64 -> *session
	// aborted holds task ids aborted before their tab was opened.
	aborted sync.Map // int64 -> struct{}
}

type instance struct {
	handle        int64
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	blocked       map[network.ResourceType]struct{}

	jobs    chan job
	stop    chan struct{}
	workers sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

type job struct {
	taskID int64
	cb     driver.Callback
	done   chan jobResult
}

type jobResult struct {
	out string
	err error
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Driver. No browser is started until NewScraper.
func New(cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Driver{
		cfg:     cfg,
		logger:  logger.Named("chrome"),
		limiter: ratelimit.New(ratelimit.Config{DefaultRPS: cfg.DomainQPS, DefaultBurst: 1}),
	}
}

// NewScraper starts a browser and its workers.
func (d *Driver) NewScraper(opts driver.Options) (int64, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	blocked, err := resourceTypes(opts.BlockResources)
	if err != nil {
		return 0, err
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.InitialURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.InitialURL, chromedp.NoModifyURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(d.logger.Sugar().Debugf))
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return 0, fmt.Errorf("chromedp warmup: %w", err)
	}

	inst := &instance{
		handle:        d.nextHandle.Add(1),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		blocked:       blocked,
		jobs:          make(chan job),
		stop:          make(chan struct{}),
	}
	for range workers {
		inst.workers.Add(1)
		go d.work(inst)
	}
	d.instances.Store(inst.handle, inst)

	d.logger.Info("browser started",
		zap.Int64("handle", inst.handle),
		zap.Int("workers", workers),
		zap.Bool("remote", opts.InitialURL != ""),
		zap.Strings("block_resources", opts.BlockResources),
	)
	return inst.handle, nil
}

func (d *Driver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", d.cfg.Headless),
		chromedp.UserAgent(d.cfg.UserAgent),
		chromedp.WindowSize(d.cfg.WindowWidth, d.cfg.WindowHeight),
	)
	return append(opts, d.cfg.ExecOptions...)
}

// Execute queues the task until a worker is free, then runs cb in a new tab.
func (d *Driver) Execute(scraper int64, taskID int64, cb driver.Callback) (string, error) {
	inst, err := d.instance(scraper)
	if err != nil {
		return "", err
	}
	if !inst.begin() {
		return "", driver.ErrScraperClosed
	}
	defer inst.inflight.Done()
	defer d.aborted.Delete(taskID)

	j := job{taskID: taskID, cb: cb, done: make(chan jobResult, 1)}
	select {
	case inst.jobs <- j:
	case <-inst.stop:
		return "", driver.ErrScraperClosed
	}
	res := <-j.done
	return res.out, res.err
}

func (d *Driver) work(inst *instance) {
	defer inst.workers.Done()
	for {
		select {
		case j := <-inst.jobs:
			j.done <- d.serve(inst, j)
		case <-inst.stop:
			return
		}
	}
}

func (d *Driver) serve(inst *instance, j job) jobResult {
	if _, ok := d.aborted.LoadAndDelete(j.taskID); ok {
		d.logger.Debug("skipping aborted task", zap.Int64("context_id", j.taskID))
		return jobResult{err: driver.ErrContextAborted}
	}

	tabCtx, cancel := chromedp.NewContext(inst.browserCtx, chromedp.WithNewBrowserContext())
	defer cancel()

	var err error
	if len(inst.blocked) > 0 {
		chromedp.ListenTarget(tabCtx, blocker(tabCtx, inst.blocked, d.logger))
		err = chromedp.Run(tabCtx, fetch.Enable())
	} else {
		err = chromedp.Run(tabCtx)
	}
	if err != nil {
		return jobResult{err: fmt.Errorf("open tab: %w", err)}
	}

	d.sessions.Store(j.taskID, &session{ctx: tabCtx, cancel: cancel})
	defer d.sessions.Delete(j.taskID)
	// Abort may have landed between the check above and the Store.
	if _, ok := d.aborted.LoadAndDelete(j.taskID); ok {
		cancel()
		return jobResult{err: driver.ErrContextAborted}
	}

	return jobResult{out: j.cb(j.taskID)}
}

// Abort cancels the tab's context. The session stays registered so later
// operations fail fast until CloseContext. A task that has no tab yet is marked
// so that no worker opens one for it.
func (d *Driver) Abort(contextID int64) {
	if v, ok := d.sessions.Load(contextID); ok {
		v.(*session).cancel()
		d.logger.Debug("context aborted", zap.Int64("context_id", contextID))
		return
	}
	d.aborted.Store(contextID, struct{}{})
}

// CloseContext closes the tab and forgets the session.
func (d *Driver) CloseContext(contextID int64) {
	if v, ok := d.sessions.LoadAndDelete(contextID); ok {
		v.(*session).cancel()
	}
}

// Close waits for the scraper's in-flight tasks, stops its workers and shuts the browser down.
func (d *Driver) Close(scraper int64) error {
	inst, err := d.instance(scraper)
	if err != nil {
		return err
	}
	inst.closeOnce.Do(func() {
		inst.mu.Lock()
		inst.closed = true
		inst.mu.Unlock()

		inst.inflight.Wait()
		close(inst.stop)
		inst.workers.Wait()
		inst.browserCancel()
		inst.allocCancel()
		d.instances.Delete(scraper)
		d.logger.Info("browser closed", zap.Int64("handle", scraper))
	})
	return nil
}

func (d *Driver) instance(handle int64) (*instance, error) {
	v, ok := d.instances.Load(handle)
	if !ok {
		return nil, driver.ErrUnknownScraper
	}
	return v.(*instance), nil
}

func (d *Driver) session(contextID int64) (*session, error) {
	v, ok := d.sessions.Load(contextID)
	if !ok {
		return nil, driver.ErrUnknownContext
	}
	return v.(*session), nil
}

func (inst *instance) begin() bool {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	if inst.closed {
		return false
	}
	inst.inflight.Add(1)
	return true
}

var resourceTokens = map[string]network.ResourceType{
	"script":     network.ResourceTypeScript,
	"stylesheet": network.ResourceTypeStylesheet,
	"image":      network.ResourceTypeImage,
	"font":       network.ResourceTypeFont,
	"media":      network.ResourceTypeMedia,
	"other":      network.ResourceTypeOther,
	"document":   network.ResourceTypeDocument,
	"manifest":   network.ResourceTypeManifest,
}

func resourceTypes(tokens []string) (map[network.ResourceType]struct{}, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	out := make(map[network.ResourceType]struct{}, len(tokens))
	for _, t := range tokens {
		rt, ok := resourceTokens[strings.ToLower(strings.TrimSpace(t))]
		if !ok {
			return nil, fmt.Errorf("unknown block resource %q", t)
		}
		out[rt] = struct{}{}
	}
	return out, nil
}

var _ driver.Driver = (*Driver)(nil)
