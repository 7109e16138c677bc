package social

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/zbrowser/internal/clock/system"
	"github.com/JakeFAU/zbrowser/internal/scraper"
	"github.com/JakeFAU/zbrowser/internal/storage"
)

const (
	instagramBaseURL   = "https://www.instagram.com"
	instagramLoginPath = "/accounts/login/"
	instagramTagsPath  = "/explore/tags"

	instagramUsernameSelector  = "input[name='username']"
	instagramPasswordSelector  = "input[name='password']"
	instagramLoginSelector     = "button[type='submit']"
	instagramPostSelector      = "main > div > div:nth-of-type(2) > div > div > div"
	instagramTimeSelector      = "a span time"
	instagramFollowersSelector = "section a span span"

	// metricsSettleMillis bounds how long the collector polls for hover overlays.
	metricsSettleMillis = 5000
)

//go:embed hover.js
var hoverScript string

const locationJS = `window.location.pathname`

var (
	hoverJS = fmt.Sprintf(`(() => {
%s
document.querySelectorAll(%q).forEach((p) => forceHover(p));
return '';
})()`, hoverScript, instagramPostSelector)

	collectPostsJS = fmt.Sprintf(`(async () => {
  const deadline = Date.now() + %d;
  while (Date.now() < deadline && !document.querySelector(%q)) {
    await new Promise((r) => setTimeout(r, 250));
  }
  const results = [];
  for (const p of document.querySelectorAll(%q)) {
    const a = p.querySelector('a');
    if (!a || !a.href) {
      continue;
    }
    const metrics = p.querySelectorAll('span > span');
    results.push({
      likes: (metrics[0] || { textContent: '' }).textContent.trim(),
      comments: (metrics[1] || { textContent: '' }).textContent.trim(),
      link: a.href,
    });
  }
  return JSON.stringify(results);
})()`, metricsSettleMillis, instagramPostSelector+" span > span", instagramPostSelector)

	timeAndAuthorJS = fmt.Sprintf(`(() => {
  const t = document.querySelector(%q);
  const a = document.querySelector('a');
  return JSON.stringify({
    time: t ? (t.getAttribute('datetime') || '') : '',
    author: a ? (a.href || '') : '',
  });
})()`, instagramTimeSelector)

	followersJS = fmt.Sprintf(`(() => {
  const el = document.querySelector(%q);
  return el ? el.textContent : '';
})()`, instagramFollowersSelector)
)

// InstagramConfig tunes the Instagram collector.
type InstagramConfig struct {
	BaseURL     string
	Username    string
	Password    string
	SessionKey  string
	UserAgent   string
	Concurrency int
	LoadTimeout time.Duration
}

// InstagramPost is one hashtag result enriched with its author's follower count.
type InstagramPost struct {
	Likes     int64  `json:"likes"`
	Comments  int64  `json:"comments"`
	Link      string `json:"link"`
	Time      string `json:"time"`
	Followers int64  `json:"followers"`
}

type hashtagEntry struct {
	Likes    string `json:"likes"`
	Comments string `json:"comments"`
	Link     string `json:"link"`
}

type postDetails struct {
	Time   string `json:"time"`
	Author string `json:"author"`
}

// Instagram logs in once, keeps the session cookies, and collects hashtag posts.
type Instagram struct {
	exec   Executor
	cfg    InstagramConfig
	logger *zap.Logger
	clock  interface{ Now() time.Time }

	sessions *sessionCache
}

// NewInstagram creates an Instagram collector. store may be nil, in which case
// the session only lives in memory.
func NewInstagram(exec Executor, store storage.BlobStore, cfg InstagramConfig, logger *zap.Logger) *Instagram {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = instagramBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SessionKey == "" {
		cfg.SessionKey = DefaultSessionKey(cfg.Username)
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
	i := &Instagram{
		exec:   exec,
		cfg:    cfg,
		logger: logger.Named("instagram"),
		clock:  system.New(),
	}
	i.sessions = &sessionCache{store: store, key: cfg.SessionKey, logger: i.logger, login: i.Login}
	return i
}

// DefaultSessionKey names the blob holding username's cookies without putting
// the username itself in the path.
func DefaultSessionKey(username string) string {
	return sessionKey("instagram", username)
}

// LoginURL returns the login form address.
func (i *Instagram) LoginURL() string {
	return i.cfg.BaseURL + instagramLoginPath
}

// HashtagURL returns the explore page for tag.
func (i *Instagram) HashtagURL(tag string) string {
	return i.cfg.BaseURL + instagramTagsPath + "/" + strings.TrimPrefix(tag, "#")
}

// Login fills in the login form and returns the resulting cookies.
func (i *Instagram) Login(ctx context.Context) (string, error) {
	if i.cfg.Username == "" || i.cfg.Password == "" {
		return "", ErrNoCredentials
	}
	cookies, err := i.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		_ = c.SetUserAgent(i.cfg.UserAgent)
		if err := c.Navigate(i.LoginURL()); err != nil {
			return "", err
		}
		if err := c.WaitForElement(instagramUsernameSelector, i.cfg.LoadTimeout); err != nil {
			return "", err
		}
		if err := c.WriteInput(instagramUsernameSelector, i.cfg.Username); err != nil {
			return "", err
		}
		if err := c.WriteInput(instagramPasswordSelector, i.cfg.Password); err != nil {
			return "", err
		}
		if err := c.ClickElement(instagramLoginSelector); err != nil {
			return "", err
		}
		// The form is replaced by the feed once the session cookie is set.
		_ = c.WaitForElement("main", i.cfg.LoadTimeout)
		return c.Cookies(), nil
	})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if !hasCookies(cookies) {
		return "", ErrLoginFailed
	}
	i.logger.Info("logged in", zap.String("username", i.cfg.Username))
	return cookies, nil
}

// Session returns the session cookies, loading them from the blob store or
// logging in when none are cached.
func (i *Instagram) Session(ctx context.Context) (string, error) {
	return i.sessions.get(ctx)
}

// ResetSession drops the cached cookies. The next Session call logs in again.
func (i *Instagram) ResetSession() {
	i.sessions.reset()
}

// HashtagPosts collects the posts shown for tag along with their timestamps
// and their authors' follower counts. An expired session triggers one fresh login.
func (i *Instagram) HashtagPosts(ctx context.Context, tag string) ([]InstagramPost, error) {
	entries, err := i.hashtagEntries(ctx, tag)
	if errors.Is(err, ErrSessionExpired) {
		i.logger.Warn("session expired, logging in again")
		i.ResetSession()
		entries, err = i.hashtagEntries(ctx, tag)
	}
	if err != nil {
		return nil, err
	}

	cookies, err := i.Session(ctx)
	if err != nil {
		return nil, err
	}

	posts := make([]InstagramPost, len(entries))
	var g errgroup.Group
	g.SetLimit(i.cfg.Concurrency)
	for n, e := range entries {
		g.Go(func() error {
			posts[n] = i.enrich(ctx, cookies, e)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.logger.Info("hashtag collected", zap.String("tag", tag), zap.Int("posts", len(posts)))
	return posts, nil
}

func (i *Instagram) hashtagEntries(ctx context.Context, tag string) ([]hashtagEntry, error) {
	cookies, err := i.Session(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := i.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		if err := i.open(c, cookies, i.HashtagURL(tag)); err != nil {
			return "", err
		}
		_ = c.WaitForElement(instagramPostSelector, i.cfg.LoadTimeout)
		c.Evaluate(hoverJS)
		return c.AsyncEvaluate(collectPostsJS), nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashtag %q: %w", tag, err)
	}

	var entries []hashtagEntry
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("decode hashtag %q: %w", tag, err)
		}
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Link != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// enrich fills in timestamp and follower count. Lookups that fail leave the
// zero value in place.
func (i *Instagram) enrich(ctx context.Context, cookies string, e hashtagEntry) InstagramPost {
	post := InstagramPost{
		Likes:    ParseHumanNumber(e.Likes),
		Comments: ParseHumanNumber(e.Comments),
		Link:     e.Link,
	}
	details, err := i.postDetails(ctx, cookies, e.Link)
	if err != nil {
		i.logger.Warn("post details", zap.String("link", e.Link), zap.Error(err))
		return post
	}
	post.Time = details.Time
	if details.Author == "" {
		return post
	}
	followers, err := i.followers(ctx, cookies, details.Author)
	if err != nil {
		i.logger.Warn("followers", zap.String("author", details.Author), zap.Error(err))
		return post
	}
	post.Followers = followers
	return post
}

func (i *Instagram) postDetails(ctx context.Context, cookies, link string) (postDetails, error) {
	raw, err := i.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		if err := i.open(c, cookies, link); err != nil {
			return "", err
		}
		_ = c.WaitForElement(instagramTimeSelector, i.cfg.LoadTimeout)
		return c.Evaluate(timeAndAuthorJS), nil
	})
	if err != nil {
		return postDetails{}, err
	}
	var d postDetails
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return postDetails{}, fmt.Errorf("decode post details: %w", err)
	}
	if d.Time == "" {
		d.Time = system.ISO(i.clock.Now())
	}
	return d, nil
}

func (i *Instagram) followers(ctx context.Context, cookies, profile string) (int64, error) {
	raw, err := i.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		if err := i.open(c, cookies, profile); err != nil {
			return "", err
		}
		_ = c.WaitForElement(instagramFollowersSelector, i.cfg.LoadTimeout)
		return c.Evaluate(followersJS), nil
	})
	if err != nil {
		return 0, err
	}
	return ParseHumanNumber(raw), nil
}

// open prepares a logged in tab and navigates it to pageURL.
func (i *Instagram) open(c *scraper.Context, cookies, pageURL string) error {
	_ = c.SetUserAgent(i.cfg.UserAgent)
	if err := c.SetCookies(cookies); err != nil {
		return err
	}
	if err := c.Navigate(pageURL); err != nil {
		return err
	}
	if strings.HasPrefix(c.Evaluate(locationJS), instagramLoginPath) {
		return ErrSessionExpired
	}
	return nil
}
