// Package cmd defines the zbrowser command line.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/app"
	"github.com/JakeFAU/zbrowser/internal/config"
	"github.com/JakeFAU/zbrowser/internal/scraper"
	"github.com/JakeFAU/zbrowser/internal/snapshot"
	"github.com/JakeFAU/zbrowser/internal/social"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 10 * time.Second

// App is the part of the application container the commands use.
type App interface {
	Close(ctx context.Context) error
	Logger() *zap.Logger
	Scraper() *scraper.Scraper
	Snapshots() *snapshot.Sink
	Reddit() *social.Reddit
	Instagram() *social.Instagram
	Twitter() *social.Twitter
}

// newApp is the application factory. Tests swap it for one backed by the stub driver.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "zbrowser",
		Short:        "Drive a pool of headless browser contexts.",
		SilenceUsage: true,
		Long: `zbrowser runs scraping tasks against a pool of isolated browser contexts.
Each task gets a fresh context, is bounded by a deadline, and is cleaned up
when it returns.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			closeApp(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env ZBROWSER_* overrides)")
	cmd.AddCommand(newScrapeCmd(), newRedditCmd(), newInstagramCmd(), newTwitterCmd())
	return cmd
}

// Execute runs the root command until it finishes or the process is interrupted.
// It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, newRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// execute runs root. Cobra skips post-run hooks when a command fails, so the
// app is closed here in that case.
func execute(ctx context.Context, root *cobra.Command) error {
	c, err := root.ExecuteContextC(ctx)
	if err != nil && c != nil && c.Context() != nil {
		closeApp(c)
	}
	return err
}

func closeApp(cmd *cobra.Command) {
	appInstance, ok := cmd.Context().Value(appKey).(App)
	if !ok || appInstance == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
	defer cancel()
	if err := appInstance.Close(ctx); err != nil {
		appInstance.Logger().Warn("shutdown incomplete", zap.Error(err))
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
