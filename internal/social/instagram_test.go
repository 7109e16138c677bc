package social

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/driver/stub"
	"github.com/JakeFAU/zbrowser/internal/storage"
	"github.com/JakeFAU/zbrowser/internal/storage/memory"
)

const (
	instaBase  = "https://insta.test"
	sessionJar = `[{"name":"sessionid","value":"abc","domain":".insta.test","path":"/"}]`
)

func newInstagram(t *testing.T, store storage.BlobStore) (*stub.Driver, *Instagram) {
	t.Helper()
	drv, s := newStubScraper(t, 2)
	ig := NewInstagram(s, store, InstagramConfig{
		BaseURL:     instaBase,
		Username:    "alice",
		Password:    "secret",
		LoadTimeout: time.Second,
	}, zap.NewNop())
	return drv, ig
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func countOps(drv *stub.Driver, op string) int {
	n := 0
	for _, c := range drv.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func TestInstagramURLs(t *testing.T) {
	t.Parallel()

	ig := NewInstagram(nil, nil, InstagramConfig{Username: "alice"}, nil)
	assert.Equal(t, DefaultSessionKey("alice"), ig.cfg.SessionKey)
	assert.NotContains(t, ig.cfg.SessionKey, "alice")
	assert.Equal(t, "https://www.instagram.com/accounts/login/", ig.LoginURL())
	assert.Equal(t, "https://www.instagram.com/explore/tags/sustainability", ig.HashtagURL("#sustainability"))
}

func TestInstagramLoginFillsForm(t *testing.T) {
	t.Parallel()

	drv, ig := newInstagram(t, nil)
	drv.SetCookieJar(sessionJar)

	cookies, err := ig.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sessionJar, cookies)

	var inputs []string
	for _, c := range drv.Calls() {
		switch c.Op {
		case "Navigate":
			assert.Equal(t, instaBase+"/accounts/login/", c.Arg)
		case "WriteInput":
			inputs = append(inputs, c.Arg)
		case "ClickElement":
			assert.Equal(t, "button[type='submit']", c.Arg)
		}
	}
	assert.Len(t, inputs, 2)
}

func TestInstagramLoginFailures(t *testing.T) {
	t.Parallel()

	_, ig := newInstagram(t, nil)
	_, err := ig.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)

	ig.cfg.Password = ""
	_, err = ig.Login(context.Background())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestInstagramSessionPersistsAndReloads(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	drv, ig := newInstagram(t, store)
	drv.SetCookieJar(sessionJar)

	cookies, err := ig.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sessionJar, cookies)
	assert.Equal(t, []string{DefaultSessionKey("alice")}, store.Paths())

	again, err := ig.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cookies, again)
	assert.Equal(t, 1, countOps(drv, "ClickElement"))

	drv2, fresh := newInstagram(t, store)
	loaded, err := fresh.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sessionJar, loaded)
	assert.Zero(t, countOps(drv2, "ClickElement"))
}

func TestInstagramResetSessionForcesLogin(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	drv, ig := newInstagram(t, store)
	drv.SetCookieJar(sessionJar)

	_, err := ig.Session(context.Background())
	require.NoError(t, err)
	ig.ResetSession()
	_, err = ig.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, countOps(drv, "ClickElement"))
}

func TestInstagramSessionStoreError(t *testing.T) {
	t.Parallel()

	store := new(storage.MockBlobStore)
	store.On("GetObject", mock.Anything, DefaultSessionKey("alice")).Return(nil, errors.New("bucket offline"))

	_, ig := newInstagram(t, store)
	_, err := ig.Session(context.Background())
	require.ErrorContains(t, err, "load session")
	store.AssertExpectations(t)
}

func TestInstagramHashtagPosts(t *testing.T) {
	t.Parallel()

	drv, ig := newInstagram(t, nil)
	drv.SetCookieJar(sessionJar)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ig.clock = fixedClock{fixed}

	tagURL := ig.HashtagURL("golang")
	drv.SetPageResult(tagURL, collectPostsJS, `[
		{"likes":"1,2 mil","comments":"34","link":"https://insta.test/p/one/"},
		{"likes":"5","comments":"","link":""},
		{"likes":"7","comments":"1","link":"https://insta.test/p/two/"}
	]`)
	drv.SetPageResult("https://insta.test/p/one/", timeAndAuthorJS,
		`{"time":"2025-05-01T10:00:00.000Z","author":"https://insta.test/bob/"}`)
	drv.SetPageResult("https://insta.test/bob/", followersJS, "12K")
	drv.SetPageResult("https://insta.test/p/two/", timeAndAuthorJS, `{"time":"","author":"https://insta.test/carol/"}`)
	drv.FailNavigation("https://insta.test/carol/")

	posts, err := ig.HashtagPosts(context.Background(), "golang")
	require.NoError(t, err)
	require.Equal(t, []InstagramPost{
		{Likes: 1200, Comments: 34, Link: "https://insta.test/p/one/", Time: "2025-05-01T10:00:00.000Z", Followers: 12000},
		{Likes: 7, Comments: 1, Link: "https://insta.test/p/two/", Time: "2025-06-01T12:00:00.000Z"},
	}, posts)
	assert.Empty(t, drv.OpenContexts())
}

func TestInstagramExpiredSessionRetriesOnce(t *testing.T) {
	t.Parallel()

	drv, ig := newInstagram(t, nil)
	drv.SetCookieJar(sessionJar)
	drv.SetPageResult(ig.HashtagURL("golang"), locationJS, "/accounts/login/")

	_, err := ig.HashtagPosts(context.Background(), "golang")
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 2, countOps(drv, "ClickElement"))
}
