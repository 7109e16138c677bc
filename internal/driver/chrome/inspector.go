package chrome

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/metrics"
)

// blocker answers paused requests: blocked resource types are failed as
// BlockedByClient, everything else continues.
func blocker(ctx context.Context, blocked map[network.ResourceType]struct{}, logger *zap.Logger) func(ev interface{}) {
	return func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Handlers must not issue commands on the event goroutine.
		go func() {
			c := chromedp.FromContext(ctx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(ctx, c.Target)

			var err error
			if _, block := blocked[paused.ResourceType]; block {
				metrics.ObserveBlockedRequest(paused.ResourceType.String())
				err = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			} else {
				err = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
			}
			if err != nil && ctx.Err() == nil {
				logger.Debug("answer paused request",
					zap.String("url", paused.Request.URL),
					zap.String("resource", paused.ResourceType.String()),
					zap.Error(err),
				)
			}
		}()
	}
}
