package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/app"
	"github.com/JakeFAU/zbrowser/internal/config"
	"github.com/JakeFAU/zbrowser/internal/driver/stub"
	"github.com/JakeFAU/zbrowser/internal/social"
)

func testConfig() config.Config {
	return config.Config{
		Scraper: config.ScraperConfig{Workers: 2},
		Browser: config.BrowserConfig{NavTimeoutSeconds: 5},
		Reddit:  config.RedditConfig{BaseURL: "https://reddit.test", Concurrency: 2, LoadTimeoutMs: 100},
		Storage: config.StorageConfig{Provider: "memory", Prefix: "snapshots"},
	}
}

// useStubApp points the factory at an app backed by drv and returns a getter
// for the instance the command built.
func useStubApp(t *testing.T, drv *stub.Driver) func() *app.App {
	t.Helper()
	var built *app.App
	orig := newApp
	newApp = func(ctx context.Context, _ string) (App, error) {
		a, err := app.Build(ctx, testConfig(), app.WithDriver(drv), app.WithLogger(zap.NewNop()))
		if err != nil {
			return nil, err
		}
		built = a
		return a, nil
	}
	t.Cleanup(func() { newApp = orig })
	return func() *app.App { return built }
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := execute(context.Background(), root)
	return out.String(), err
}

func TestScrapeCommand(t *testing.T) {
	drv := stub.New()
	drv.SetPage("https://example.com/", "<html><head><title>Hello</title></head></html>")
	drv.SetPageResult("https://example.com/", "document.title", "Hello")
	built := useStubApp(t, drv)

	out, err := run(t, "scrape", "https://example.com/", "--eval", "document.title", "--save", "--html", "--wait", "title")
	require.NoError(t, err)

	var res scrapeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "https://example.com/", res.URL)
	assert.Equal(t, "Hello", res.Eval)
	assert.Equal(t, len(res.HTML), res.Bytes)
	require.NotNil(t, res.Snapshot)
	assert.True(t, strings.HasPrefix(res.Snapshot.URI, "memory://snapshots/"))

	assert.Equal(t, 1, drv.ScraperCloses(built().Scraper().Handle()))
	assert.Empty(t, drv.OpenContexts())
}

func TestScrapeCommandOmitsHTMLByDefault(t *testing.T) {
	drv := stub.New()
	drv.SetPage("https://example.com/", "<p>x</p>")
	useStubApp(t, drv)

	out, err := run(t, "scrape", "https://example.com/")
	require.NoError(t, err)
	assert.NotContains(t, out, `"html"`)
	assert.Contains(t, out, `"bytes": 8`)
}

func TestScrapeCommandNavigationFailure(t *testing.T) {
	drv := stub.New()
	drv.FailNavigation("https://down.test/")
	built := useStubApp(t, drv)

	_, err := run(t, "scrape", "https://down.test/")
	require.ErrorContains(t, err, "scrape https://down.test/")
	assert.Equal(t, 1, drv.ScraperCloses(built().Scraper().Handle()))
}

func TestRedditCommand(t *testing.T) {
	drv := stub.New()
	drv.SetPage("https://reddit.test/search?q=golang", `<div consume-events>
		<faceplate-hovercard><a href="/r/golang/">r/golang</a></faceplate-hovercard>
		<time datetime="2025-01-02T03:04:05.000Z"></time>
		<a data-testid="post-title-text">Hello gophers</a>
		<faceplate-number number="10">10</faceplate-number>
		<faceplate-number number="2">2</faceplate-number>
	</div>`)
	useStubApp(t, drv)

	out, err := run(t, "reddit", "golang")
	require.NoError(t, err)

	var posts []social.Post
	require.NoError(t, json.Unmarshal([]byte(out), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "Hello gophers", posts[0].Title)
	assert.Equal(t, "https://reddit.test/r/golang/", posts[0].Subreddit)
}

func TestInstagramCommandNeedsCredentials(t *testing.T) {
	useStubApp(t, stub.New())

	_, err := run(t, "instagram", "golang")
	require.ErrorIs(t, err, social.ErrNoCredentials)
}

func TestTwitterCommandNeedsCredentials(t *testing.T) {
	drv := stub.New()
	useStubApp(t, drv)

	_, err := run(t, "x", "golang")
	require.ErrorIs(t, err, social.ErrNoCredentials)
	assert.Zero(t, len(drv.ContextIDs()), "no browser task without credentials")
}

func TestFactoryFailureStopsCommand(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("no browser") }
	t.Cleanup(func() { newApp = orig })

	_, err := run(t, "scrape", "https://example.com/")
	require.ErrorContains(t, err, "failed to initialize application services")
}

func TestScrapeRequiresURL(t *testing.T) {
	useStubApp(t, stub.New())

	_, err := run(t, "scrape")
	require.Error(t, err)
}
