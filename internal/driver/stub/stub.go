// Package stub provides an in-memory driver.Driver for tests. It honours the
// worker bound of each scraper, records every call and serves scripted results.
package stub

import (
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/zbrowser/internal/driver"
)

// ErrScripted is returned by operations configured to fail with Fail.
var ErrScripted = errors.New("stub: scripted failure")

// ErrAborted is returned by operations on an aborted context.
var ErrAborted = errors.New("stub: context aborted")

// Call records one driver operation.
type Call struct {
	Op        string
	ContextID int64
	Arg       string
}

type instance struct {
	opts   driver.Options
	slots  chan struct{}
	closed bool
}

type session struct {
	aborted chan struct{}
	once    sync.Once
	url     string
}

// Driver is a scriptable driver.Driver.
type Driver struct {
	// TaskDelay is slept inside Execute while the worker slot is held, before the
	// callback runs. Abort interrupts it.
	TaskDelay time.Duration
	// ExecuteErr, when set, makes Execute fail without invoking the callback.
	ExecuteErr error
	// NewScraperErr, when set, makes NewScraper fail.
	NewScraperErr error

	mu           sync.Mutex
	nextHandle   int64
	instances    map[int64]*instance
	sessions     map[int64]*session
	results      map[string]string
	pages        map[string]string
	pageResults  map[string]map[string]string
	failedURLs   map[string]bool
	failures     map[string]bool
	html         string
	cookies      string
	calls        []Call
	closeCounts  map[int64]int
	aborts       map[int64]int
	scraperClose map[int64]int
	contextIDs   []int64
	active       int
	maxActive    int
}

// New creates an empty stub driver.
func New() *Driver {
	return &Driver{
		instances:    make(map[int64]*instance),
		sessions:     make(map[int64]*session),
		results:      make(map[string]string),
		pages:        make(map[string]string),
		pageResults:  make(map[string]map[string]string),
		failedURLs:   make(map[string]bool),
		failures:     make(map[string]bool),
		cookies:      "[]",
		closeCounts:  make(map[int64]int),
		aborts:       make(map[int64]int),
		scraperClose: make(map[int64]int),
	}
}

// SetResult scripts the value Evaluate and AsyncEvaluate return for expr.
func (d *Driver) SetResult(expr, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[expr] = value
}

// SetHTML scripts the value GetHTML returns.
func (d *Driver) SetHTML(html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.html = html
}

// SetCookieJar replaces the cookie jar StringCookies reports.
func (d *Driver) SetCookieJar(raw string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = raw
}

// SetPage scripts the HTML GetHTML returns after navigating to url.
func (d *Driver) SetPage(url, html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = html
}

// SetPageResult scripts the value expr evaluates to after navigating to url.
// Page results take precedence over SetResult.
func (d *Driver) SetPageResult(url, expr, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pageResults[url] == nil {
		d.pageResults[url] = make(map[string]string)
	}
	d.pageResults[url][expr] = value
}

// FailNavigation makes Navigate to url return ErrScripted.
func (d *Driver) FailNavigation(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failedURLs[url] = true
}

// Fail makes every call to op (e.g. "Evaluate", "GetHTML") return ErrScripted.
func (d *Driver) Fail(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = true
}

// NewScraper implements driver.Driver.
func (d *Driver) NewScraper(opts driver.Options) (int64, error) {
	if d.NewScraperErr != nil {
		return 0, d.NewScraperErr
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHandle++
	d.instances[d.nextHandle] = &instance{
		opts:  opts,
		slots: make(chan struct{}, workers),
	}
	return d.nextHandle, nil
}

// Execute implements driver.Driver.
func (d *Driver) Execute(scraper int64, taskID int64, cb driver.Callback) (string, error) {
	d.mu.Lock()
	inst, ok := d.instances[scraper]
	switch {
	case !ok:
		d.mu.Unlock()
		return "", driver.ErrUnknownScraper
	case inst.closed:
		d.mu.Unlock()
		return "", driver.ErrScraperClosed
	}
	d.calls = append(d.calls, Call{Op: "Execute", ContextID: taskID})
	d.mu.Unlock()

	if d.ExecuteErr != nil {
		return "", d.ExecuteErr
	}

	inst.slots <- struct{}{}
	defer func() { <-inst.slots }()

	sess := &session{aborted: make(chan struct{})}
	d.mu.Lock()
	if d.aborts[taskID] > 0 {
		d.mu.Unlock()
		return "", ErrAborted
	}
	d.sessions[taskID] = sess
	d.contextIDs = append(d.contextIDs, taskID)
	d.active++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active--
		delete(d.sessions, taskID)
		d.mu.Unlock()
	}()

	if d.TaskDelay > 0 {
		select {
		case <-time.After(d.TaskDelay):
		case <-sess.aborted:
			return "", ErrAborted
		}
	}
	return cb(taskID), nil
}

func (d *Driver) record(op string, contextID int64, arg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: op, ContextID: contextID, Arg: arg})
	sess, ok := d.sessions[contextID]
	if !ok {
		return driver.ErrUnknownContext
	}
	select {
	case <-sess.aborted:
		return ErrAborted
	default:
	}
	if d.failures[op] {
		return ErrScripted
	}
	return nil
}

// Navigate implements driver.Driver.
func (d *Driver) Navigate(contextID int64, url string) error {
	if err := d.record("Navigate", contextID, url); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failedURLs[url] {
		return ErrScripted
	}
	if sess, ok := d.sessions[contextID]; ok {
		sess.url = url
	}
	return nil
}

// SetUserAgent implements driver.Driver.
func (d *Driver) SetUserAgent(contextID int64, userAgent string) error {
	return d.record("SetUserAgent", contextID, userAgent)
}

// WaitForElement implements driver.Driver.
func (d *Driver) WaitForElement(contextID int64, selector string, _ time.Duration) error {
	return d.record("WaitForElement", contextID, selector)
}

// WriteInput implements driver.Driver.
func (d *Driver) WriteInput(contextID int64, selector string, text string) error {
	return d.record("WriteInput", contextID, selector+"="+text)
}

// ClickElement implements driver.Driver.
func (d *Driver) ClickElement(contextID int64, selector string) error {
	return d.record("ClickElement", contextID, selector)
}

// StringCookies implements driver.Driver.
func (d *Driver) StringCookies(contextID int64) (string, error) {
	if err := d.record("StringCookies", contextID, ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cookies, nil
}

// SetStringCookies implements driver.Driver.
func (d *Driver) SetStringCookies(contextID int64, cookies string) error {
	if err := d.record("SetStringCookies", contextID, cookies); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = cookies
	return nil
}

// Evaluate implements driver.Driver.
func (d *Driver) Evaluate(contextID int64, expr string) (string, error) {
	return d.evaluate("Evaluate", contextID, expr)
}

// AsyncEvaluate implements driver.Driver.
func (d *Driver) AsyncEvaluate(contextID int64, expr string) (string, error) {
	return d.evaluate("AsyncEvaluate", contextID, expr)
}

func (d *Driver) evaluate(op string, contextID int64, expr string) (string, error) {
	if err := d.record(op, contextID, expr); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if sess, ok := d.sessions[contextID]; ok {
		if v, ok := d.pageResults[sess.url][expr]; ok {
			return v, nil
		}
	}
	return d.results[expr], nil
}

// GetHTML implements driver.Driver.
func (d *Driver) GetHTML(contextID int64) (string, error) {
	if err := d.record("GetHTML", contextID, ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if sess, ok := d.sessions[contextID]; ok {
		if html, ok := d.pages[sess.url]; ok {
			return html, nil
		}
	}
	return d.html, nil
}

// Abort implements driver.Driver.
func (d *Driver) Abort(contextID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aborts[contextID]++
	if sess, ok := d.sessions[contextID]; ok {
		sess.once.Do(func() { close(sess.aborted) })
	}
}

// CloseContext implements driver.Driver.
func (d *Driver) CloseContext(contextID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: "CloseContext", ContextID: contextID})
	d.closeCounts[contextID]++
}

// Close implements driver.Driver.
func (d *Driver) Close(scraper int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[scraper]
	if !ok {
		return driver.ErrUnknownScraper
	}
	inst.closed = true
	d.scraperClose[scraper]++
	return nil
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsFor returns the recorded calls for one context id.
func (d *Driver) CallsFor(contextID int64) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.calls {
		if c.ContextID == contextID {
			out = append(out, c)
		}
	}
	return out
}

// ContextCloses reports how many times CloseContext was called for contextID.
func (d *Driver) ContextCloses(contextID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCounts[contextID]
}

// Aborts reports how many times Abort was called for contextID.
func (d *Driver) Aborts(contextID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborts[contextID]
}

// ScraperCloses reports how many times Close was called for a scraper handle.
func (d *Driver) ScraperCloses(scraper int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scraperClose[scraper]
}

// ContextIDs returns the context ids opened by Execute, in order.
func (d *Driver) ContextIDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.contextIDs...)
}

// OpenContexts reports context ids opened by Execute that were never closed.
func (d *Driver) OpenContexts() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var open []int64
	for _, id := range d.contextIDs {
		if d.closeCounts[id] == 0 {
			open = append(open, id)
		}
	}
	return open
}

// MaxActive reports the highest number of simultaneously running tasks observed.
func (d *Driver) MaxActive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// Options returns the options a scraper handle was created with.
func (d *Driver) Options(scraper int64) (driver.Options, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[scraper]
	if !ok {
		return driver.Options{}, false
	}
	return inst.opts, true
}

var _ driver.Driver = (*Driver)(nil)
