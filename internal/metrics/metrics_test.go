package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

func TestObserveItem(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveItem(scrape.ItemInserted)
	r.ObserveItem(scrape.ItemInserted)
	r.ObserveItem(scrape.ItemFailed)

	require.InDelta(t, 2, testutil.ToFloat64(r.itemsTotal.WithLabelValues(scrape.ItemInserted)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.itemsTotal.WithLabelValues(scrape.ItemFailed)), 0)
}

func TestObserveRun(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New()
	r.ObserveRun(scrape.Report{
		StartedAt:  start,
		FinishedAt: start.Add(12 * time.Second),
		ItemsFound: 48,
	})
	r.ObserveRun(scrape.Report{
		StartedAt:  start,
		FinishedAt: start.Add(30 * time.Second),
		Error:      "page not ready",
	})

	require.InDelta(t, 1, testutil.ToFloat64(r.runsTotal.WithLabelValues("completed")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.runsTotal.WithLabelValues("aborted")), 0)
	require.InDelta(t, 0, testutil.ToFloat64(r.lastItemsFound), 0)
	require.InDelta(t, float64(start.Add(30*time.Second).Unix()), testutil.ToFloat64(r.lastRunTimestamp), 0)
	require.Equal(t, 1, testutil.CollectAndCount(r.runDuration))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveItem(scrape.ItemInserted)
	path := filepath.Join(t.TempDir(), "scraper.prom")
	require.NoError(t, r.WriteTextfile(path))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `scraper_items_total{status="inserted"} 1`)
	require.Contains(t, string(data), "scraper_run_duration_seconds_count 0")

	require.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}
