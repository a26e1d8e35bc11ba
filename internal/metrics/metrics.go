// Package metrics records scrape run outcomes as Prometheus collectors.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

// Recorder implements scrape.Observer on a dedicated registry.
type Recorder struct {
	registry *prometheus.Registry

	itemsTotal       *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	lastItemsFound   prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
	runDuration      prometheus.Histogram
}

var _ scrape.Observer = (*Recorder)(nil)

// New registers the scraper collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_items_total",
				Help: "Total number of result items processed, labeled by status.",
			},
			[]string{"status"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total number of scrape runs, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		lastItemsFound: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_last_run_items_found",
				Help: "Number of result items enumerated by the most recent run.",
			},
		),
		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_last_run_timestamp_seconds",
				Help: "Unix time at which the most recent run finished.",
			},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of scrape run wall time.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
	}
}

// Registry exposes the underlying registry as a gatherer.
func (r *Recorder) Registry() prometheus.Gatherer {
	return r.registry
}

// ObserveItem counts one item outcome.
func (r *Recorder) ObserveItem(status string) {
	r.itemsTotal.WithLabelValues(status).Inc()
}

// ObserveRun records the aggregate report of a finished run.
func (r *Recorder) ObserveRun(report scrape.Report) {
	outcome := "completed"
	if report.Aborted() {
		outcome = "aborted"
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.lastItemsFound.Set(float64(report.ItemsFound))
	if !report.FinishedAt.IsZero() {
		r.lastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	}
	r.runDuration.Observe(report.Duration().Seconds())
}

// WriteTextfile writes the current values in the text exposition format for
// the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
