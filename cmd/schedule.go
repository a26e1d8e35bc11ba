package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/config"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var spec string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs the scrape repeatedly on a cron schedule",
		Long: `Builds the scraper once and runs a scrape on every tick of the cron
expression until interrupted. A run that is still in progress when the next
tick fires causes that tick to be skipped. Failed runs are logged and the
schedule continues.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if spec != "" {
				cfg.Schedule.Cron = spec
			}
			return runSchedule(cmd.Context(), cfg, opts.logger)
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "override schedule.cron (e.g. \"@every 30m\" or \"0 */2 * * *\")")
	return cmd
}

func runSchedule(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	loc, err := time.LoadLocation(cfg.Schedule.Location)
	if err != nil {
		return fmt.Errorf("load schedule location: %w", err)
	}
	if _, err := cronParser.Parse(cfg.Schedule.Cron); err != nil {
		return fmt.Errorf("parse schedule.cron %q: %w", cfg.Schedule.Cron, err)
	}

	r, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize scraper: %w", err)
	}
	defer r.Close()

	cronLog := cronLogger{logger: logger.Named("cron").Sugar()}
	sched := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cronParser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := sched.AddFunc(cfg.Schedule.Cron, func() {
		report, err := r.Run(ctx)
		if err != nil {
			logger.Error("scheduled scrape failed", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule scrape: %w", err)
	}

	logger.Info("scrape schedule started", zap.String("cron", cfg.Schedule.Cron), zap.String("location", loc.String()))
	sched.Start()
	<-ctx.Done()
	logger.Info("scrape schedule stopping")
	<-sched.Stop().Done()
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
