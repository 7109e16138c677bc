package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/zbrowser/internal/scraper"
	"github.com/JakeFAU/zbrowser/internal/storage"
)

const (
	twitterBaseURL = "https://x.com"

	twitterOpenLoginSelector = "[data-testid='loginButton']"
	twitterUsernameSelector  = "input[name='text']"
	twitterPasswordSelector  = "input[name='password']"
	twitterSubmitSelector    = "button[data-testid='LoginForm_Login_Button']"
	twitterHomeSelector      = "[data-testid='AppTabBar_Home_Link']"
	twitterTweetSelector     = "article[data-testid='tweet']"

	// scrollPauseMillis is the longest the feed gets to grow after one scroll.
	scrollPauseMillis = 1000
)

// twitterLoginPaths are where X sends sessions it no longer accepts.
var twitterLoginPaths = []string{"/i/flow/login", "/login"}

const twitterNextJS = `(() => {
  const next = document.evaluate("//span[contains(text(), 'Next')]", document, null,
    XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (!next) {
    return 'missing';
  }
  next.click();
  return 'clicked';
})()`

// tweetsScript scrolls the search feed steps times and returns every tweet seen
// as JSON text. X recycles article nodes while scrolling, so tweets are
// collected after each step and deduplicated by link.
func tweetsScript(steps int, wait time.Duration) string {
	return fmt.Sprintf(`(async () => {
  const sel = %q;
  const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
  const deadline = Date.now() + %d;
  while (Date.now() < deadline && !document.querySelector(sel)) {
    await sleep(250);
  }
  const seen = new Map();
  const text = (root, q) => ((root.querySelector(q) || {}).innerText || '').trim();
  const count = (root, id) => {
    const el = root.querySelector('button[data-testid="' + id + '"] span');
    return el ? el.textContent.trim() : '';
  };
  const collect = () => {
    for (const article of document.querySelectorAll(sel)) {
      const status = article.querySelector('a[href*="/status/"]');
      if (!status) {
        continue;
      }
      const link = new URL(status.getAttribute('href'), location.origin).href;
      if (seen.has(link)) {
        continue;
      }
      const handle = Array.from(article.querySelectorAll('a span'))
        .map((s) => s.innerText)
        .find((t) => t && t.startsWith('@')) || '';
      const time = article.querySelector('time');
      seen.set(link, {
        username: text(article, '[data-testid="User-Name"] span'),
        handle: handle,
        text: text(article, '[data-testid="tweetText"]'),
        link: link,
        time: time ? (time.getAttribute('datetime') || '') : '',
        likes: count(article, 'like'),
        retweets: count(article, 'retweet'),
        replies: count(article, 'reply'),
      });
    }
  };
  collect();
  for (let i = 0; i < %d; i++) {
    const before = document.querySelectorAll(sel).length;
    window.scrollBy(0, window.innerHeight);
    const until = Date.now() + %d;
    while (Date.now() < until && document.querySelectorAll(sel).length === before) {
      await sleep(100);
    }
    collect();
  }
  return JSON.stringify(Array.from(seen.values()));
})()`, twitterTweetSelector, wait.Milliseconds(), steps, scrollPauseMillis)
}

func verifiedFollowersSelector(handle string) string {
	return fmt.Sprintf(`a[href="/%s/verified_followers"] span span`, handle)
}

func twitterFollowersJS(handle string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%q);
  return el ? el.textContent : '';
})()`, verifiedFollowersSelector(handle))
}

// TwitterConfig tunes the X collector.
type TwitterConfig struct {
	BaseURL     string
	Username    string
	Password    string
	SessionKey  string
	UserAgent   string
	Concurrency int
	LoadTimeout time.Duration
	// ScrollSteps is how many screens of search results are loaded.
	ScrollSteps int
}

// Tweet is one search result enriched with its author's follower count.
type Tweet struct {
	Username  string `json:"username"`
	Handle    string `json:"handle"`
	Text      string `json:"text"`
	Link      string `json:"link"`
	Time      string `json:"time"`
	Likes     int64  `json:"likes"`
	Retweets  int64  `json:"retweets"`
	Replies   int64  `json:"replies"`
	Followers int64  `json:"followers"`
}

type tweetEntry struct {
	Username string `json:"username"`
	Handle   string `json:"handle"`
	Text     string `json:"text"`
	Link     string `json:"link"`
	Time     string `json:"time"`
	Likes    string `json:"likes"`
	Retweets string `json:"retweets"`
	Replies  string `json:"replies"`
}

// Twitter logs in to X, keeps the session cookies and collects hashtag searches.
type Twitter struct {
	exec     Executor
	cfg      TwitterConfig
	logger   *zap.Logger
	sessions *sessionCache
}

// NewTwitter creates an X collector. store may be nil, in which case the
// session only lives in memory.
func NewTwitter(exec Executor, store storage.BlobStore, cfg TwitterConfig, logger *zap.Logger) *Twitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twitterBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SessionKey == "" {
		cfg.SessionKey = DefaultTwitterSessionKey(cfg.Username)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgents[0]
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 15 * time.Second
	}
	if cfg.ScrollSteps <= 0 {
		cfg.ScrollSteps = 30
	}
	t := &Twitter{
		exec:   exec,
		cfg:    cfg,
		logger: logger.Named("twitter"),
	}
	t.sessions = &sessionCache{store: store, key: cfg.SessionKey, logger: t.logger, login: t.Login}
	return t
}

// DefaultTwitterSessionKey names the blob holding username's X cookies.
func DefaultTwitterSessionKey(username string) string {
	return sessionKey("twitter", username)
}

// SearchURL returns the search page listing posts tagged with tag.
func (t *Twitter) SearchURL(tag string) string {
	return t.cfg.BaseURL + "/search?q=" + url.QueryEscape("#"+strings.TrimPrefix(tag, "#"))
}

// ProfileURL returns the profile page of handle, with or without its leading @.
func (t *Twitter) ProfileURL(handle string) string {
	return t.cfg.BaseURL + "/" + strings.TrimPrefix(handle, "@")
}

// Login walks the two step login flow and returns the resulting cookies.
func (t *Twitter) Login(ctx context.Context) (string, error) {
	if t.cfg.Username == "" || t.cfg.Password == "" {
		return "", ErrNoCredentials
	}
	cookies, err := t.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		_ = c.SetUserAgent(t.cfg.UserAgent)
		if err := c.Navigate(t.cfg.BaseURL + "/"); err != nil {
			return "", err
		}
		if err := c.WaitForElement(twitterOpenLoginSelector, t.cfg.LoadTimeout); err != nil {
			return "", err
		}
		if err := c.ClickElement(twitterOpenLoginSelector); err != nil {
			return "", err
		}
		if err := c.WaitForElement(twitterUsernameSelector, t.cfg.LoadTimeout); err != nil {
			return "", err
		}
		if err := c.WriteInput(twitterUsernameSelector, t.cfg.Username); err != nil {
			return "", err
		}
		if c.Evaluate(twitterNextJS) != "clicked" {
			return "", fmt.Errorf("%w: next button not found", ErrLoginFailed)
		}
		if err := c.WaitForElement(twitterPasswordSelector, t.cfg.LoadTimeout); err != nil {
			return "", err
		}
		if err := c.WriteInput(twitterPasswordSelector, t.cfg.Password); err != nil {
			return "", err
		}
		if err := c.ClickElement(twitterSubmitSelector); err != nil {
			return "", err
		}
		_ = c.WaitForElement(twitterHomeSelector, t.cfg.LoadTimeout)
		return c.Cookies(), nil
	})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if !hasCookies(cookies) {
		return "", ErrLoginFailed
	}
	t.logger.Info("logged in", zap.String("username", t.cfg.Username))
	return cookies, nil
}

// Session returns the session cookies, loading them from the blob store or
// logging in when none are cached.
func (t *Twitter) Session(ctx context.Context) (string, error) {
	return t.sessions.get(ctx)
}

// ResetSession drops the cached cookies. The next Session call logs in again.
func (t *Twitter) ResetSession() {
	t.sessions.reset()
}

// HashtagPosts collects the tweets a hashtag search shows and looks up each
// author's verified follower count. An expired session triggers one fresh login.
func (t *Twitter) HashtagPosts(ctx context.Context, tag string) ([]Tweet, error) {
	entries, err := t.searchEntries(ctx, tag)
	if errors.Is(err, ErrSessionExpired) {
		t.logger.Warn("session expired, logging in again")
		t.ResetSession()
		entries, err = t.searchEntries(ctx, tag)
	}
	if err != nil {
		return nil, err
	}

	cookies, err := t.Session(ctx)
	if err != nil {
		return nil, err
	}

	var handles []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if h := strings.TrimPrefix(e.Handle, "@"); h != "" && !seen[h] {
			seen[h] = true
			handles = append(handles, h)
		}
	}

	var mu sync.Mutex
	followers := make(map[string]int64, len(handles))
	var g errgroup.Group
	g.SetLimit(t.cfg.Concurrency)
	for _, h := range handles {
		g.Go(func() error {
			n, err := t.followers(ctx, cookies, h)
			if err != nil {
				t.logger.Warn("followers", zap.String("handle", h), zap.Error(err))
				return nil
			}
			mu.Lock()
			followers[h] = n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tweets := make([]Tweet, 0, len(entries))
	for _, e := range entries {
		tweets = append(tweets, Tweet{
			Username:  CleanText(e.Username),
			Handle:    e.Handle,
			Text:      e.Text,
			Link:      e.Link,
			Time:      e.Time,
			Likes:     ParseFollowerCount(e.Likes),
			Retweets:  ParseFollowerCount(e.Retweets),
			Replies:   ParseFollowerCount(e.Replies),
			Followers: followers[strings.TrimPrefix(e.Handle, "@")],
		})
	}
	t.logger.Info("hashtag collected", zap.String("tag", tag), zap.Int("tweets", len(tweets)))
	return tweets, nil
}

func (t *Twitter) searchEntries(ctx context.Context, tag string) ([]tweetEntry, error) {
	cookies, err := t.Session(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := t.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		if err := t.open(c, cookies, t.SearchURL(tag)); err != nil {
			return "", err
		}
		return c.AsyncEvaluate(tweetsScript(t.cfg.ScrollSteps, t.cfg.LoadTimeout)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", tag, err)
	}

	var entries []tweetEntry
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("decode search %q: %w", tag, err)
		}
	}
	return entries, nil
}

func (t *Twitter) followers(ctx context.Context, cookies, handle string) (int64, error) {
	raw, err := t.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		if err := t.open(c, cookies, t.ProfileURL(handle)); err != nil {
			return "", err
		}
		_ = c.WaitForElement(verifiedFollowersSelector(handle), t.cfg.LoadTimeout)
		return c.Evaluate(twitterFollowersJS(handle)), nil
	})
	if err != nil {
		return 0, err
	}
	return ParseFollowerCount(raw), nil
}

// open prepares a logged in tab and navigates it to pageURL.
func (t *Twitter) open(c *scraper.Context, cookies, pageURL string) error {
	_ = c.SetUserAgent(t.cfg.UserAgent)
	if err := c.SetCookies(cookies); err != nil {
		return err
	}
	if err := c.Navigate(pageURL); err != nil {
		return err
	}
	path := c.Evaluate(locationJS)
	for _, p := range twitterLoginPaths {
		if strings.HasPrefix(path, p) {
			return ErrSessionExpired
		}
	}
	return nil
}
