package scraper

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/driver"
	"github.com/JakeFAU/zbrowser/internal/metrics"
)

// Context is the handle a task uses to drive its browser context. It is only
// valid inside the task function that received it.
//
// Operations that produce no value return an error the caller may ignore.
// Operations that produce a value return "" on failure; the failure is logged.
type Context struct {
	id        int64
	drv       driver.Driver
	logger    *zap.Logger
	closeOnce sync.Once
}

func newContext(id int64, drv driver.Driver, logger *zap.Logger) *Context {
	metrics.IncActiveContexts()
	return &Context{
		id:     id,
		drv:    drv,
		logger: logger.With(zap.Int64("context_id", id)),
	}
}

// ID returns the driver context id, which equals the task id.
func (c *Context) ID() int64 {
	return c.id
}

// Navigate loads url in the context's tab.
func (c *Context) Navigate(url string) error {
	return c.check("navigate", c.drv.Navigate(c.id, url))
}

// SetUserAgent overrides the user agent for subsequent requests.
func (c *Context) SetUserAgent(userAgent string) error {
	return c.check("set_user_agent", c.drv.SetUserAgent(c.id, userAgent))
}

// WaitForElement blocks until selector matches an element or timeout elapses.
func (c *Context) WaitForElement(selector string, timeout time.Duration) error {
	return c.check("wait_for_element", c.drv.WaitForElement(c.id, selector, timeout))
}

// WriteInput types text into the element matched by selector.
func (c *Context) WriteInput(selector, text string) error {
	return c.check("write_input", c.drv.WriteInput(c.id, selector, text))
}

// ClickElement clicks the element matched by selector.
func (c *Context) ClickElement(selector string) error {
	return c.check("click_element", c.drv.ClickElement(c.id, selector))
}

// SetCookies installs cookies from their JSON form, as produced by Cookies.
func (c *Context) SetCookies(cookies string) error {
	return c.check("set_cookies", c.drv.SetStringCookies(c.id, cookies))
}

// Cookies returns the context's cookies as JSON.
func (c *Context) Cookies() string {
	v, err := c.drv.StringCookies(c.id)
	return c.value("cookies", v, err)
}

// Evaluate runs js in the page and returns its result as a string.
func (c *Context) Evaluate(js string) string {
	v, err := c.drv.Evaluate(c.id, js)
	return c.value("evaluate", v, err)
}

// AsyncEvaluate runs js, awaits the promise it yields and returns the settled value.
func (c *Context) AsyncEvaluate(js string) string {
	v, err := c.drv.AsyncEvaluate(c.id, js)
	return c.value("async_evaluate", v, err)
}

// HTML returns the serialized document, including open shadow roots.
func (c *Context) HTML() string {
	v, err := c.drv.GetHTML(c.id)
	return c.value("html", v, err)
}

// Close releases the driver context. Only the first call has an effect.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.drv.CloseContext(c.id)
		metrics.DecActiveContexts()
	})
}

func (c *Context) check(op string, err error) error {
	if err == nil {
		return nil
	}
	metrics.ObserveContextOpFailure(op)
	c.logger.Warn("context operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Context) value(op, v string, err error) string {
	if err != nil {
		metrics.ObserveContextOpFailure(op)
		c.logger.Error("context operation failed", zap.String("op", op), zap.Error(err))
		return ""
	}
	return v
}
