package stub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/zbrowser/internal/driver"
)

func TestExecuteInvokesCallbackWithTaskID(t *testing.T) {
	t.Parallel()

	d := New()
	h, err := d.NewScraper(driver.Options{Workers: 2})
	require.NoError(t, err)

	out, err := d.Execute(h, 7, func(id int64) string {
		assert.Equal(t, int64(7), id)
		return "seven"
	})
	require.NoError(t, err)
	assert.Equal(t, "seven", out)
	assert.Equal(t, []int64{7}, d.ContextIDs())
}

func TestOperationsOutsideExecuteFail(t *testing.T) {
	t.Parallel()

	d := New()
	assert.ErrorIs(t, d.Navigate(99, "https://example.com"), driver.ErrUnknownContext)
	_, err := d.Evaluate(99, "1")
	assert.ErrorIs(t, err, driver.ErrUnknownContext)
}

func TestUnknownAndClosedScraper(t *testing.T) {
	t.Parallel()

	d := New()
	_, err := d.Execute(5, 1, func(int64) string { return "" })
	assert.ErrorIs(t, err, driver.ErrUnknownScraper)

	h, err := d.NewScraper(driver.Options{})
	require.NoError(t, err)
	require.NoError(t, d.Close(h))
	_, err = d.Execute(h, 1, func(int64) string { return "" })
	assert.ErrorIs(t, err, driver.ErrScraperClosed)
	assert.Equal(t, 1, d.ScraperCloses(h))
}

func TestAbortFailsLaterOperations(t *testing.T) {
	t.Parallel()

	d := New()
	h, err := d.NewScraper(driver.Options{Workers: 1})
	require.NoError(t, err)

	_, err = d.Execute(h, 3, func(id int64) string {
		d.Abort(id)
		_, evalErr := d.Evaluate(id, "1")
		assert.ErrorIs(t, evalErr, ErrAborted)
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Aborts(3))
}

func TestAbortBeforeExecuteSkipsCallback(t *testing.T) {
	t.Parallel()

	d := New()
	h, err := d.NewScraper(driver.Options{Workers: 1})
	require.NoError(t, err)

	d.Abort(4)
	called := false
	_, err = d.Execute(h, 4, func(int64) string {
		called = true
		return ""
	})
	require.ErrorIs(t, err, ErrAborted)
	assert.False(t, called)
	assert.Empty(t, d.ContextIDs())
}

func TestPagesFollowNavigation(t *testing.T) {
	t.Parallel()

	d := New()
	d.SetHTML("<p>default</p>")
	d.SetPage("https://a.test", "<p>a</p>")
	d.SetResult("document.title", "generic")
	d.SetPageResult("https://a.test", "document.title", "A")
	d.FailNavigation("https://down.test")

	h, err := d.NewScraper(driver.Options{Workers: 1})
	require.NoError(t, err)

	_, err = d.Execute(h, 1, func(id int64) string {
		html, _ := d.GetHTML(id)
		assert.Equal(t, "<p>default</p>", html)
		title, _ := d.Evaluate(id, "document.title")
		assert.Equal(t, "generic", title)

		assert.NoError(t, d.Navigate(id, "https://a.test"))
		html, _ = d.GetHTML(id)
		assert.Equal(t, "<p>a</p>", html)
		title, _ = d.Evaluate(id, "document.title")
		assert.Equal(t, "A", title)

		assert.ErrorIs(t, d.Navigate(id, "https://down.test"), ErrScripted)
		return ""
	})
	require.NoError(t, err)
}
