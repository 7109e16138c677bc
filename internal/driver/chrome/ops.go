package chrome

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

func (d *Driver) run(contextID int64, actions ...chromedp.Action) error {
	sess, err := d.session(contextID)
	if err != nil {
		return err
	}
	if err := chromedp.Run(sess.ctx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Navigate loads url, waiting for the per-host budget first.
func (d *Driver) Navigate(contextID int64, url string) error {
	sess, err := d.session(contextID)
	if err != nil {
		return err
	}
	if err := d.limiter.Wait(sess.ctx, url); err != nil {
		return fmt.Errorf("navigate rate limit: %w", err)
	}
	ctx, cancel := context.WithTimeout(sess.ctx, d.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// withTimeout bounds parent by timeout. A non-positive timeout adds no deadline.
func withTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// SetUserAgent overrides the tab's user agent.
func (d *Driver) SetUserAgent(contextID int64, userAgent string) error {
	return d.run(contextID, emulation.SetUserAgentOverride(userAgent))
}

// WaitForElement waits until selector is ready or timeout elapses.
func (d *Driver) WaitForElement(contextID int64, selector string, timeout time.Duration) error {
	sess, err := d.session(contextID)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(sess.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// WriteInput sends text as key events to the element matched by selector.
func (d *Driver) WriteInput(contextID int64, selector string, text string) error {
	return d.run(contextID, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// ClickElement clicks the element matched by selector.
func (d *Driver) ClickElement(contextID int64, selector string) error {
	return d.run(contextID, chromedp.Click(selector, chromedp.ByQuery))
}

// StringCookies returns the tab's cookies as a JSON array.
func (d *Driver) StringCookies(contextID int64) (string, error) {
	var cookies []*network.Cookie
	err := d.run(contextID, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}
	if cookies == nil {
		cookies = []*network.Cookie{}
	}
	raw, err := json.Marshal(cookies)
	if err != nil {
		return "", fmt.Errorf("encode cookies: %w", err)
	}
	return string(raw), nil
}

// SetStringCookies installs cookies from a JSON array of cookie parameters.
func (d *Driver) SetStringCookies(contextID int64, cookies string) error {
	params, err := cookieParams(cookies)
	if err != nil {
		return err
	}
	return d.run(contextID, network.SetCookies(params))
}

// Evaluate runs expr and returns its value. String results are unquoted; other
// values keep their JSON text; undefined yields "".
func (d *Driver) Evaluate(contextID int64, expr string) (string, error) {
	var obj *runtime.RemoteObject
	if err := d.run(contextID, chromedp.Evaluate(expr, &obj)); err != nil {
		return "", err
	}
	return remoteValue(obj), nil
}

// AsyncEvaluate runs expr and awaits the promise it returns.
func (d *Driver) AsyncEvaluate(contextID int64, expr string) (string, error) {
	var obj *runtime.RemoteObject
	err := d.run(contextID, chromedp.Evaluate(expr, &obj, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return "", err
	}
	return remoteValue(obj), nil
}

// GetHTML serializes the document, descending into open shadow roots.
func (d *Driver) GetHTML(contextID int64) (string, error) {
	var html string
	if err := d.run(contextID, chromedp.Evaluate(serializeDocumentJS, &html)); err != nil {
		return "", err
	}
	return html, nil
}

func remoteValue(obj *runtime.RemoteObject) string {
	if obj == nil || obj.Type == runtime.TypeUndefined {
		return ""
	}
	return decodeResult([]byte(obj.Value))
}

func decodeResult(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
