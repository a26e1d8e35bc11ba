package cmd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/config"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

type countingRunner struct {
	runs   atomic.Int32
	closed atomic.Bool
	err    error
}

func (c *countingRunner) Run(context.Context) (scrape.Report, error) {
	c.runs.Add(1)
	return scrape.Report{RunID: "run"}, c.err
}

func (c *countingRunner) Close() { c.closed.Store(true) }

func scheduleConfig(t *testing.T, spec string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Schedule.Cron = spec
	return cfg
}

func TestRunScheduleRunsUntilCanceled(t *testing.T) {
	r := &countingRunner{err: errors.New("page not ready")}
	prev := newRunner
	newRunner = func(context.Context, config.Config, *zap.Logger) (runner, error) { return r, nil }
	t.Cleanup(func() { newRunner = prev })

	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runSchedule(ctx, scheduleConfig(t, "@every 1s"), zap.New(core)) }()

	require.Eventually(t, func() bool { return r.runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not stop")
	}
	require.True(t, r.closed.Load())
	require.GreaterOrEqual(t, logs.FilterMessage("scheduled scrape failed").Len(), 1)
}

func TestRunScheduleRejectsBadInput(t *testing.T) {
	err := runSchedule(context.Background(), scheduleConfig(t, "every tuesday"), zap.NewNop())
	require.ErrorContains(t, err, "parse schedule.cron")

	cfg := scheduleConfig(t, "@hourly")
	cfg.Schedule.Location = "Mars/Olympus_Mons"
	err = runSchedule(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "schedule location")
}
