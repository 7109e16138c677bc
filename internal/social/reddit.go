package social

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/zbrowser/internal/scraper"
)

const (
	redditPostSelector      = "[consume-events]"
	redditTimeSelector      = "time[datetime]"
	redditTitleSelector     = "[data-testid='post-title-text']"
	redditNumberSelector    = "faceplate-number"
	redditSubredditSelector = "faceplate-hovercard a"
	redditMembersSelector   = "#subscribers faceplate-number"
)

// RedditConfig tunes the Reddit collector.
type RedditConfig struct {
	BaseURL     string
	Concurrency int
	LoadTimeout time.Duration
}

// Post is one search result.
type Post struct {
	Time      string `json:"time"`
	Title     string `json:"title"`
	Votes     int64  `json:"vote"`
	Comments  int64  `json:"comments"`
	Subreddit string `json:"subreddit"`
}

// PostWithMembers adds the subreddit's member count to a Post.
type PostWithMembers struct {
	Post
	Members int64 `json:"members"`
}

// Reddit searches Reddit through the browser.
type Reddit struct {
	exec    Executor
	cfg     RedditConfig
	logger  *zap.Logger
	members singleflight.Group
}

// NewReddit creates a Reddit collector.
func NewReddit(exec Executor, cfg RedditConfig, logger *zap.Logger) *Reddit {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.reddit.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 15 * time.Second
	}
	return &Reddit{exec: exec, cfg: cfg, logger: logger.Named("reddit")}
}

// SearchURL returns the search page for keyword.
func (r *Reddit) SearchURL(keyword string) string {
	return r.cfg.BaseURL + "/search?q=" + url.QueryEscape(keyword)
}

// SearchPosts returns the posts on the first search page for keyword.
// Results missing any field are skipped.
func (r *Reddit) SearchPosts(ctx context.Context, keyword string) ([]Post, error) {
	html, err := r.fetch(ctx, r.SearchURL(keyword), redditPostSelector)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	posts, err := ParseRedditSearch(html, r.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	r.logger.Info("search parsed", zap.String("keyword", keyword), zap.Int("posts", len(posts)))
	return posts, nil
}

// PostsWithMembers searches for keyword, then visits each post's subreddit to
// read its member count. Posts whose subreddit cannot be read are dropped.
func (r *Reddit) PostsWithMembers(ctx context.Context, keyword string) ([]PostWithMembers, error) {
	posts, err := r.SearchPosts(ctx, keyword)
	if err != nil {
		return nil, err
	}

	found := make([]*PostWithMembers, len(posts))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, p := range posts {
		g.Go(func() error {
			members, err := r.subredditMembers(ctx, p.Subreddit)
			if err != nil {
				r.logger.Warn("skip post", zap.String("subreddit", p.Subreddit), zap.Error(err))
				return nil
			}
			found[i] = &PostWithMembers{Post: p, Members: members}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]PostWithMembers, 0, len(found))
	for _, p := range found {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// subredditMembers loads a subreddit page once per URL even when several posts share it.
func (r *Reddit) subredditMembers(ctx context.Context, subredditURL string) (int64, error) {
	v, err, _ := r.members.Do(subredditURL, func() (interface{}, error) {
		html, err := r.fetch(ctx, subredditURL, redditMembersSelector)
		if err != nil {
			return int64(0), err
		}
		members, ok := ParseRedditMembers(html)
		if !ok {
			return int64(0), fmt.Errorf("members not found on %s", subredditURL)
		}
		return members, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (r *Reddit) fetch(ctx context.Context, pageURL, readySelector string) (string, error) {
	return r.exec.Execute(ctx, func(c *scraper.Context) (string, error) {
		_ = c.SetUserAgent(randomUserAgent())
		if err := c.Navigate(pageURL); err != nil {
			return "", err
		}
		// Missing content still yields a page worth parsing.
		_ = c.WaitForElement(readySelector, r.cfg.LoadTimeout)
		html := c.HTML()
		if html == "" {
			return "", ErrEmptyPage
		}
		return html, nil
	})
}

// ParseRedditSearch extracts posts from a search result page. Relative
// subreddit links are resolved against baseURL.
func ParseRedditSearch(html, baseURL string) ([]Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	var posts []Post
	doc.Find(redditPostSelector).Each(func(_ int, s *goquery.Selection) {
		if p, ok := parseRedditPost(s, baseURL); ok {
			posts = append(posts, p)
		}
	})
	return posts, nil
}

func parseRedditPost(s *goquery.Selection, baseURL string) (Post, bool) {
	timeSel := s.Find(redditTimeSelector).First()
	titleSel := s.Find(redditTitleSelector).First()
	numbers := s.Find(redditNumberSelector)
	subSel := s.Find(redditSubredditSelector).First()
	if timeSel.Length() == 0 || titleSel.Length() == 0 || numbers.Length() < 2 || subSel.Length() == 0 {
		return Post{}, false
	}

	datetime, _ := timeSel.Attr("datetime")
	href, _ := subSel.Attr("href")
	if strings.HasPrefix(href, "/r/") {
		href = strings.TrimRight(baseURL, "/") + href
	}
	return Post{
		Time:      datetime,
		Title:     CleanText(titleSel.Text()),
		Votes:     faceplateNumber(numbers.Eq(0)),
		Comments:  faceplateNumber(numbers.Eq(1)),
		Subreddit: href,
	}, true
}

// ParseRedditMembers reads the member count from a subreddit page.
func ParseRedditMembers(html string) (int64, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}
	sel := doc.Find(redditMembersSelector).First()
	if sel.Length() == 0 {
		return 0, false
	}
	return faceplateNumber(sel), true
}

// faceplateNumber prefers the raw number attribute over the formatted text.
func faceplateNumber(s *goquery.Selection) int64 {
	if raw, ok := s.Attr("number"); ok {
		if n := ParseHumanNumber(raw); n > 0 || strings.TrimSpace(raw) == "0" {
			return n
		}
	}
	return ParseHumanNumber(s.Text())
}
