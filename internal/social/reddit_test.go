package social

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const redditBase = "https://reddit.test"

const redditSearchFixture = `<html><body>
<div consume-events>
  <faceplate-hovercard><a href="/r/golang/">r/golang</a></faceplate-hovercard>
  <time datetime="2025-01-02T03:04:05.000Z">1 day ago</time>
  <a data-testid="post-title-text">Go 1.25
     released</a>
  <faceplate-number number="1234">1.2K</faceplate-number>
  <faceplate-number>56</faceplate-number>
</div>
<div consume-events>
  <faceplate-hovercard><a href="https://www.reddit.com/r/rust/">r/rust</a></faceplate-hovercard>
  <time datetime="2025-01-03T00:00:00.000Z">2 days ago</time>
  <a data-testid="post-title-text">Rust news</a>
  <faceplate-number>2,5 mil</faceplate-number>
  <faceplate-number>7</faceplate-number>
</div>
<div consume-events>
  <a data-testid="post-title-text">missing everything else</a>
</div>
</body></html>`

func TestParseRedditSearch(t *testing.T) {
	t.Parallel()

	posts, err := ParseRedditSearch(redditSearchFixture, redditBase)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, Post{
		Time:      "2025-01-02T03:04:05.000Z",
		Title:     "Go 1.25 released",
		Votes:     1234,
		Comments:  56,
		Subreddit: "https://reddit.test/r/golang/",
	}, posts[0])
	assert.Equal(t, Post{
		Time:      "2025-01-03T00:00:00.000Z",
		Title:     "Rust news",
		Votes:     2500,
		Comments:  7,
		Subreddit: "https://www.reddit.com/r/rust/",
	}, posts[1])
}

func TestParseRedditMembers(t *testing.T) {
	t.Parallel()

	n, ok := ParseRedditMembers(`<div id="subscribers"><faceplate-number>1,6 mil</faceplate-number></div>`)
	require.True(t, ok)
	assert.Equal(t, int64(1600), n)

	_, ok = ParseRedditMembers(`<div>nothing</div>`)
	assert.False(t, ok)
}

func TestRedditSearchPostsThroughScraper(t *testing.T) {
	t.Parallel()

	drv, s := newStubScraper(t, 2)
	r := NewReddit(s, RedditConfig{BaseURL: redditBase + "/", LoadTimeout: time.Second}, zap.NewNop())
	searchURL := r.SearchURL("go lang")
	assert.Equal(t, "https://reddit.test/search?q=go+lang", searchURL)
	drv.SetPage(searchURL, redditSearchFixture)

	posts, err := r.SearchPosts(context.Background(), "go lang")
	require.NoError(t, err)
	require.Len(t, posts, 2)

	var ops []string
	for _, c := range drv.Calls() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"Execute", "SetUserAgent", "Navigate", "WaitForElement", "GetHTML", "CloseContext"}, ops)
}

func TestRedditSearchPostsFailures(t *testing.T) {
	t.Parallel()

	drv, s := newStubScraper(t, 1)
	r := NewReddit(s, RedditConfig{BaseURL: redditBase}, zap.NewNop())

	_, err := r.SearchPosts(context.Background(), "empty")
	require.ErrorIs(t, err, ErrEmptyPage)

	drv.FailNavigation(r.SearchURL("down"))
	_, err = r.SearchPosts(context.Background(), "down")
	require.Error(t, err)
}

func TestRedditPostsWithMembersSkipsUnreadableSubreddits(t *testing.T) {
	t.Parallel()

	drv, s := newStubScraper(t, 2)
	r := NewReddit(s, RedditConfig{BaseURL: redditBase, Concurrency: 2, LoadTimeout: time.Second}, zap.NewNop())
	drv.SetPage(r.SearchURL("go"), redditSearchFixture)
	drv.SetPage("https://reddit.test/r/golang/",
		`<div id="subscribers"><faceplate-number number="250000">250K</faceplate-number></div>`)
	drv.FailNavigation("https://www.reddit.com/r/rust/")

	posts, err := r.PostsWithMembers(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Go 1.25 released", posts[0].Title)
	assert.Equal(t, int64(250000), posts[0].Members)
	assert.Empty(t, drv.OpenContexts())
}
