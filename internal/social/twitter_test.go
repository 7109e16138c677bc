package social

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/driver/stub"
	"github.com/JakeFAU/zbrowser/internal/storage"
	"github.com/JakeFAU/zbrowser/internal/storage/memory"
)

const (
	xBase  = "https://x.test"
	xJar   = `[{"name":"auth_token","value":"t0k","domain":".x.test","path":"/"}]`
	xSteps = 3
)

func newTwitter(t *testing.T, store storage.BlobStore) (*stub.Driver, *Twitter) {
	t.Helper()
	drv, s := newStubScraper(t, 2)
	tw := NewTwitter(s, store, TwitterConfig{
		BaseURL:     xBase,
		Username:    "bob",
		Password:    "hunter2",
		LoadTimeout: time.Second,
		ScrollSteps: xSteps,
	}, zap.NewNop())
	return drv, tw
}

func TestTwitterURLs(t *testing.T) {
	t.Parallel()

	tw := NewTwitter(nil, nil, TwitterConfig{Username: "bob"}, nil)
	assert.Equal(t, DefaultTwitterSessionKey("bob"), tw.cfg.SessionKey)
	assert.NotEqual(t, DefaultSessionKey("bob"), tw.cfg.SessionKey)
	assert.NotContains(t, tw.cfg.SessionKey, "bob")
	assert.Equal(t, 30, tw.cfg.ScrollSteps)
	assert.Equal(t, "https://x.com/search?q=%23golang", tw.SearchURL("#golang"))
	assert.Equal(t, "https://x.com/search?q=%23golang", tw.SearchURL("golang"))
	assert.Equal(t, "https://x.com/gopher", tw.ProfileURL("@gopher"))
}

func TestTwitterLoginWalksBothSteps(t *testing.T) {
	t.Parallel()

	drv, tw := newTwitter(t, nil)
	drv.SetCookieJar(xJar)
	drv.SetResult(twitterNextJS, "clicked")

	cookies, err := tw.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xJar, cookies)

	var steps []string
	for _, c := range drv.Calls() {
		switch c.Op {
		case "Navigate", "ClickElement", "WriteInput", "Evaluate":
			steps = append(steps, c.Op+" "+c.Arg)
		}
	}
	assert.Equal(t, []string{
		"Navigate " + xBase + "/",
		"ClickElement " + twitterOpenLoginSelector,
		"WriteInput " + twitterUsernameSelector + "=bob",
		"Evaluate " + twitterNextJS,
		"WriteInput " + twitterPasswordSelector + "=hunter2",
		"ClickElement " + twitterSubmitSelector,
	}, steps)
}

func TestTwitterLoginFailures(t *testing.T) {
	t.Parallel()

	drv, tw := newTwitter(t, nil)
	drv.SetCookieJar(xJar)
	_, err := tw.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed, "missing Next button")
	assert.Equal(t, 1, countOps(drv, "WriteInput"), "password must not be typed")

	drv.SetResult(twitterNextJS, "clicked")
	drv.SetCookieJar("[]")
	_, err = tw.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed, "no cookies")

	tw.cfg.Username = ""
	_, err = tw.Login(context.Background())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestTwitterSessionPersists(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	drv, tw := newTwitter(t, store)
	drv.SetCookieJar(xJar)
	drv.SetResult(twitterNextJS, "clicked")

	_, err := tw.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultTwitterSessionKey("bob")}, store.Paths())

	drv2, fresh := newTwitter(t, store)
	loaded, err := fresh.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xJar, loaded)
	assert.Zero(t, countOps(drv2, "ClickElement"))
}

func TestTwitterHashtagPosts(t *testing.T) {
	t.Parallel()

	drv, tw := newTwitter(t, nil)
	drv.SetCookieJar(xJar)
	drv.SetResult(twitterNextJS, "clicked")

	drv.SetPageResult(tw.SearchURL("golang"), tweetsScript(xSteps, time.Second), `[
		{"username":"Go\nTeam","handle":"@golang","text":"Go 1.25 is out","link":"https://x.test/golang/status/1",
		 "time":"2025-08-12T16:00:00.000Z","likes":"1.2K","retweets":"340","replies":"56"},
		{"username":"Go Team","handle":"@golang","text":"Release notes","link":"https://x.test/golang/status/2",
		 "time":"2025-08-12T17:00:00.000Z","likes":"10","retweets":"","replies":"1"},
		{"username":"Gopher","handle":"@gopher","text":"yay","link":"https://x.test/gopher/status/3",
		 "time":"","likes":"","retweets":"","replies":""}
	]`)
	drv.SetPageResult(tw.ProfileURL("golang"), twitterFollowersJS("golang"), "2.5M")
	drv.FailNavigation(tw.ProfileURL("gopher"))

	tweets, err := tw.HashtagPosts(context.Background(), "#golang")
	require.NoError(t, err)
	require.Equal(t, []Tweet{
		{Username: "Go Team", Handle: "@golang", Text: "Go 1.25 is out", Link: "https://x.test/golang/status/1",
			Time: "2025-08-12T16:00:00.000Z", Likes: 1200, Retweets: 340, Replies: 56, Followers: 2500000},
		{Username: "Go Team", Handle: "@golang", Text: "Release notes", Link: "https://x.test/golang/status/2",
			Time: "2025-08-12T17:00:00.000Z", Likes: 10, Replies: 1, Followers: 2500000},
		{Username: "Gopher", Handle: "@gopher", Text: "yay", Link: "https://x.test/gopher/status/3"},
	}, tweets)

	profiles := 0
	for _, c := range drv.Calls() {
		if c.Op == "Navigate" && c.Arg == tw.ProfileURL("golang") {
			profiles++
		}
	}
	assert.Equal(t, 1, profiles, "one follower lookup per handle")
	assert.Empty(t, drv.OpenContexts())
}

func TestTwitterExpiredSessionRetriesOnce(t *testing.T) {
	t.Parallel()

	drv, tw := newTwitter(t, nil)
	drv.SetCookieJar(xJar)
	drv.SetResult(twitterNextJS, "clicked")
	drv.SetPageResult(tw.SearchURL("golang"), locationJS, "/i/flow/login")

	_, err := tw.HashtagPosts(context.Background(), "golang")
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 4, countOps(drv, "ClickElement"), "two logins of two clicks each")
}
