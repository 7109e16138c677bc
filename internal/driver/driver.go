// Package driver defines the boundary between the scraper engine and the browser
// automation runtime that executes its tasks.
//
// Everything crossing the boundary is a primitive: int64 handles for scrapers and
// contexts, strings for URLs, selectors, scripts and results, and Go errors for
// failure. The engine never holds a reference to a driver-side object.
package driver

import (
	"errors"
	"time"
)

var (
	// ErrUnknownScraper is returned when a scraper handle is not registered with the driver.
	ErrUnknownScraper = errors.New("unknown scraper handle")
	// ErrUnknownContext is returned when a context id is not open (never opened or already closed).
	ErrUnknownContext = errors.New("unknown context id")
	// ErrScraperClosed is returned by Execute once Close has started for the scraper.
	ErrScraperClosed = errors.New("scraper closed")
	// ErrContextAborted is returned by Execute for a task aborted before a worker picked it up.
	ErrContextAborted = errors.New("context aborted")
)

// Callback is the fixed signature the driver calls back into once a context for a
// task is ready. The argument is the context id (equal to the task id handed to
// Execute). The returned string is passed through as the Execute result; it is never
// used to signal failure.
type Callback func(contextID int64) string

// Options configures a driver-side scraper instance.
type Options struct {
	// InitialURL optionally points at a remote browser endpoint. Empty launches a local browser.
	InitialURL string
	// Workers bounds the number of concurrently open browser contexts.
	Workers int
	// BlockResources lists resource kind tokens (script, stylesheet, image, font, media,
	// document, manifest, other) whose requests are suppressed.
	BlockResources []string
}

// Driver is the browser automation runtime reached by the scraper engine.
type Driver interface {
	// NewScraper starts a browser instance with its worker pool and returns its handle.
	NewScraper(opts Options) (int64, error)
	// Execute assigns a worker, opens a context with id taskID and invokes cb(taskID)
	// synchronously before returning. Calls beyond the worker count queue.
	Execute(scraper int64, taskID int64, cb Callback) (string, error)

	Navigate(contextID int64, url string) error
	SetUserAgent(contextID int64, userAgent string) error
	WaitForElement(contextID int64, selector string, timeout time.Duration) error
	WriteInput(contextID int64, selector string, text string) error
	ClickElement(contextID int64, selector string) error
	StringCookies(contextID int64) (string, error)
	SetStringCookies(contextID int64, cookies string) error
	Evaluate(contextID int64, expr string) (string, error)
	AsyncEvaluate(contextID int64, expr string) (string, error)
	GetHTML(contextID int64) (string, error)

	// Abort interrupts whatever the context is doing without releasing it. Operations
	// in flight or issued later fail until the context is closed.
	Abort(contextID int64)
	// CloseContext releases the driver-side resources held for a context.
	CloseContext(contextID int64)
	// Close shuts the scraper instance down after its in-flight tasks finish.
	Close(scraper int64) error
}
