package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout   = 30 * time.Second
	defaultCollection     = "products"
	defaultReleaseTimeout = 10 * time.Second
	snapshotContentType   = "text/html; charset=utf-8"
)

// Config controls a Pipeline run.
type Config struct {
	TargetURL      string
	StoreURI       string
	Collection     string
	ReadyTimeout   time.Duration
	Selectors      Selectors
	SnapshotPrefix string
	Topic          string
}

// Option customizes optional Pipeline collaborators.
type Option func(*Pipeline)

// WithSnapshots stores the rendered results page before extraction.
func WithSnapshots(store BlobStore) Option {
	return func(p *Pipeline) { p.snapshots = store }
}

// WithPublisher publishes the completion report to Config.Topic.
func WithPublisher(publisher Publisher) Option {
	return func(p *Pipeline) { p.publisher = publisher }
}

// WithObserver reports item outcomes and run summaries.
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) { p.observer = observer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// Pipeline runs the load, extract, and persist sequence over one page.
type Pipeline struct {
	cfg       Config
	browser   Browser
	connector Connector
	snapshots BlobStore
	publisher Publisher
	observer  Observer
	now       func() time.Time
	newID     func() (string, error)
	logger    *zap.Logger
}

// New constructs a Pipeline.
func New(cfg Config, browser Browser, connector Connector, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if browser == nil {
		return nil, fmt.Errorf("browser is required")
	}
	if connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if strings.TrimSpace(cfg.TargetURL) == "" {
		return nil, fmt.Errorf("target url is required")
	}
	if strings.TrimSpace(cfg.Selectors.Items) == "" {
		return nil, fmt.Errorf("items selector is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:       cfg,
		browser:   browser,
		connector: connector,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newRunID,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// resources tracks what a run acquired so it can be released on every path.
type resources struct {
	page    Page
	session Session
}

// Run executes the pipeline once. Setup failures return an error wrapping one
// of the Err* sentinels; per-item failures are recorded in the Report only.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{
		TargetURL: p.cfg.TargetURL,
		StartedAt: p.now(),
	}
	runID, err := p.newID()
	if err != nil {
		return report, fmt.Errorf("generate run id: %w", err)
	}
	report.RunID = runID
	logger := p.logger.With(zap.String("run_id", runID))

	res := &resources{}
	func() {
		defer p.release(ctx, logger, res)
		err = p.execute(ctx, logger, &report, res)
	}()
	report.FinishedAt = p.now()
	if err != nil {
		report.Error = err.Error()
	}
	if p.observer != nil {
		p.observer.ObserveRun(report)
	}
	if err != nil {
		logger.Error("scrape run aborted", zap.String("url", p.cfg.TargetURL), zap.Error(err))
		return report, err
	}
	p.complete(ctx, logger, report)
	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, logger *zap.Logger, report *Report, res *resources) error {
	page, err := p.browser.Open(ctx)
	if err != nil {
		return setupError(ErrBrowserLaunch, "", err)
	}
	res.page = page

	if err := page.Navigate(ctx, p.cfg.TargetURL); err != nil {
		return setupError(ErrNavigation, p.cfg.TargetURL, err)
	}
	for _, marker := range []string{p.cfg.Selectors.SiteMarker, p.cfg.Selectors.ResultsMarker} {
		if strings.TrimSpace(marker) == "" {
			continue
		}
		if err := page.WaitForSelector(ctx, marker, p.cfg.ReadyTimeout); err != nil {
			return setupError(ErrPageNotReady, marker, err)
		}
	}
	logger.Debug("page ready", zap.String("url", p.cfg.TargetURL))

	report.SnapshotURI = p.snapshot(ctx, logger, page, report.RunID)

	items, err := page.QueryAll(ctx, p.cfg.Selectors.Items)
	if err != nil {
		return fmt.Errorf("enumerate items: %w", err)
	}
	report.ItemsFound = len(items)
	logger.Info("result items found", zap.Int("count", len(items)))

	session, err := p.connector.Connect(ctx, p.cfg.StoreURI)
	if err != nil {
		return setupError(ErrStoreConnectionFailed, "", err)
	}
	res.session = session

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted before item %d: %w", i, err)
		}
		if err := p.processItem(ctx, session, i, item); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, ItemFailure{Index: i, Error: err.Error()})
			logger.Error("error extracting product data", zap.Int("index", i), zap.Error(err))
			p.observeItem(ItemFailed)
			continue
		}
		report.Inserted++
		p.observeItem(ItemInserted)
	}
	return nil
}

func (p *Pipeline) processItem(ctx context.Context, session Session, index int, item Node) error {
	rec, err := ExtractRecord(ctx, item, p.cfg.Selectors.Fields)
	if err != nil {
		return &ItemError{Index: index, Err: fmt.Errorf("extract: %w", err)}
	}
	if err := session.Insert(ctx, p.cfg.Collection, rec); err != nil {
		return &ItemError{Index: index, Err: fmt.Errorf("insert: %w", err)}
	}
	return nil
}

// release closes the page before the store session. It uses a context that
// survives cancellation of the run.
func (p *Pipeline) release(ctx context.Context, logger *zap.Logger, res *resources) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultReleaseTimeout)
	defer cancel()

	if res.page != nil {
		if err := res.page.Close(releaseCtx); err != nil {
			logger.Warn("failed to close page", zap.Error(err))
		}
	}
	if res.session != nil {
		if err := res.session.Close(releaseCtx); err != nil {
			logger.Warn("failed to close store session", zap.Error(err))
		}
	}
}

func (p *Pipeline) complete(ctx context.Context, logger *zap.Logger, report Report) {
	logger.Info("scraping complete",
		zap.String("url", report.TargetURL),
		zap.Int("items_found", report.ItemsFound),
		zap.Int("inserted", report.Inserted),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration()),
	)
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	id, err := p.publisher.Publish(ctx, p.cfg.Topic, report)
	if err != nil {
		logger.Warn("failed to publish completion report", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("completion report published", zap.String("topic", p.cfg.Topic), zap.String("message_id", id))
}

func (p *Pipeline) snapshot(ctx context.Context, logger *zap.Logger, page Page, runID string) string {
	if p.snapshots == nil {
		return ""
	}
	snap, ok := page.(Snapshotter)
	if !ok {
		logger.Debug("page does not support snapshots")
		return ""
	}
	html, err := snap.HTML(ctx)
	if err != nil {
		logger.Warn("snapshot capture failed", zap.Error(err))
		return ""
	}
	sum := sha256.Sum256([]byte(html))
	path := snapshotPath(p.cfg.SnapshotPrefix, runID, hex.EncodeToString(sum[:]))
	uri, err := p.snapshots.PutObject(ctx, path, snapshotContentType, strings.NewReader(html))
	if err != nil {
		logger.Warn("snapshot upload failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	logger.Debug("snapshot stored", zap.String("uri", uri))
	return uri
}

func (p *Pipeline) observeItem(status string) {
	if p.observer != nil {
		p.observer.ObserveItem(status)
	}
}

func snapshotPath(prefix, runID, hash string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", runID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, runID, hash)
}

func newRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
