// Package social collects posts from social networks by driving the scraper
// engine and parsing what the browser returns.
package social

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/JakeFAU/zbrowser/internal/scraper"
)

// ErrEmptyPage is returned when the browser produced no markup for a page.
var ErrEmptyPage = errors.New("empty page")

// Executor runs a browser task. *scraper.Scraper satisfies it.
type Executor interface {
	Execute(ctx context.Context, task func(*scraper.Context) (string, error)) (string, error)
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

func randomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}
