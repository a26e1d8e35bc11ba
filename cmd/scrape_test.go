package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/config"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

type fakeRunner struct {
	report scrape.Report
	err    error
	ran    bool
	closed bool
}

func (f *fakeRunner) Run(context.Context) (scrape.Report, error) {
	f.ran = true
	return f.report, f.err
}

func (f *fakeRunner) Close() { f.closed = true }

func withRunner(t *testing.T, r *fakeRunner, buildErr error) *config.Config {
	t.Helper()
	var got config.Config
	prev := newRunner
	newRunner = func(_ context.Context, cfg config.Config, _ *zap.Logger) (runner, error) {
		got = cfg
		if buildErr != nil {
			return nil, buildErr
		}
		return r, nil
	}
	t.Cleanup(func() { newRunner = prev })
	return &got
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--env-file", ""))
	cmd.SetOut(&nopWriter{})
	cmd.SetErr(&nopWriter{})
	return cmd.ExecuteContext(context.Background())
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestScrapeCommandRunsAndCloses(t *testing.T) {
	r := &fakeRunner{report: scrape.Report{ItemsFound: 3, Inserted: 2, Failed: 1}}
	got := withRunner(t, r, nil)

	require.NoError(t, execute(t, "scrape", "--url", "https://shop.example.com/s?k=tea"))
	require.True(t, r.ran)
	require.True(t, r.closed)
	require.Equal(t, "https://shop.example.com/s?k=tea", got.Target.URL)
}

func TestScrapeCommandPropagatesFatalErrors(t *testing.T) {
	r := &fakeRunner{err: scrape.ErrStoreConnectionFailed}
	withRunner(t, r, nil)

	err := execute(t, "scrape")
	require.ErrorIs(t, err, scrape.ErrStoreConnectionFailed)
	require.True(t, r.closed)
}

func TestScrapeCommandBuildFailure(t *testing.T) {
	withRunner(t, nil, errors.New("no chrome"))

	err := execute(t, "scrape")
	require.ErrorContains(t, err, "initialize scraper")
}

func TestScrapeCommandRejectsBadURL(t *testing.T) {
	r := &fakeRunner{}
	withRunner(t, r, nil)

	err := execute(t, "scrape", "--url", "not a url")
	require.ErrorContains(t, err, "target.url")
	require.False(t, r.ran)
}
