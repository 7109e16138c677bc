package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/scraper"
	"github.com/JakeFAU/zbrowser/internal/snapshot"
)

type scrapeOptions struct {
	wait        string
	waitTimeout time.Duration
	userAgent   string
	eval        string
	includeHTML bool
	save        bool
}

type scrapeResult struct {
	URL      string           `json:"url"`
	Bytes    int              `json:"bytes"`
	HTML     string           `json:"html,omitempty"`
	Eval     string           `json:"eval,omitempty"`
	Snapshot *snapshot.Record `json:"snapshot,omitempty"`
}

func newScrapeCmd() *cobra.Command {
	var opts scrapeOptions
	cmd := &cobra.Command{
		Use:   "scrape URL",
		Short: "Load a page in a fresh browser context and report its rendered HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.wait, "wait", "", "CSS selector to wait for before reading the page")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait-timeout", 10*time.Second, "how long to wait for --wait")
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", "", "override the browser user agent")
	cmd.Flags().StringVar(&opts.eval, "eval", "", "JavaScript expression to evaluate after loading")
	cmd.Flags().BoolVar(&opts.includeHTML, "html", false, "include the HTML in the output")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the HTML in the snapshot store")
	return cmd
}

func runScrape(cmd *cobra.Command, url string, opts scrapeOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	res, err := scraper.Execute(cmd.Context(), appInstance.Scraper(), func(c *scraper.Context) (scrapeResult, error) {
		if opts.userAgent != "" {
			if err := c.SetUserAgent(opts.userAgent); err != nil {
				return scrapeResult{}, err
			}
		}
		if err := c.Navigate(url); err != nil {
			return scrapeResult{}, err
		}
		if opts.wait != "" {
			if err := c.WaitForElement(opts.wait, opts.waitTimeout); err != nil {
				return scrapeResult{}, err
			}
		}
		r := scrapeResult{URL: url, HTML: c.HTML()}
		if opts.eval != "" {
			r.Eval = c.Evaluate(opts.eval)
		}
		return r, nil
	})
	if err != nil {
		return fmt.Errorf("scrape %s: %w", url, err)
	}
	res.Bytes = len(res.HTML)

	if opts.save {
		rec, err := appInstance.Snapshots().Save(cmd.Context(), url, res.HTML)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		res.Snapshot = &rec
	}
	if !opts.includeHTML {
		res.HTML = ""
	}
	logger.Info("scrape finished", zap.String("url", url), zap.Int("bytes", res.Bytes))
	return writeJSON(cmd.OutOrStdout(), res)
}
