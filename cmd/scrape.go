package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/app"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/config"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

// runner is the part of *app.App the scrape command drives.
type runner interface {
	Run(ctx context.Context) (scrape.Report, error)
	Close()
}

// newRunner is replaced in tests.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (runner, error) {
	return app.New(ctx, cfg, logger)
}

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	var targetURL string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape of the configured target",
		Long: `Opens the target page, waits for the site and results markers, extracts a
record per result item and inserts each one into the configured store.
Items that fail are logged and skipped; setup failures exit non-zero.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if targetURL != "" {
				cfg.Target.URL = targetURL
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runScrape(cmd.Context(), cfg, opts.logger)
		},
	}
	cmd.Flags().StringVar(&targetURL, "url", "", "override target.url for this run")
	return cmd
}

func runScrape(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	r, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize scraper: %w", err)
	}
	defer r.Close()

	report, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", cfg.Target.URL, err)
	}
	if report.Failed > 0 {
		logger.Warn("some items were skipped", zap.Int("failed", report.Failed), zap.Int("inserted", report.Inserted))
	}
	return nil
}
