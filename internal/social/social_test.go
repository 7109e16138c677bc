package social

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/driver/stub"
	"github.com/JakeFAU/zbrowser/internal/scraper"
)

func newStubScraper(t *testing.T, workers int) (*stub.Driver, *scraper.Scraper) {
	t.Helper()
	drv := stub.New()
	s, err := scraper.New(drv, scraper.Config{Workers: workers}, scraper.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return drv, s
}
