// Package app builds the scraper's collaborators from configuration and owns
// the long-lived clients that outlive a single run.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/config"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/page/headless"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/page/static"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/publisher/pubsub"
	redispublisher "github.com/JakeFAU/realtime-cpi-scraper/internal/publisher/redis"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/storage/gcs"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/storage/local"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/store/mongo"
	"github.com/JakeFAU/realtime-cpi-scraper/internal/store/postgres"
)

// Option overrides a collaborator that would otherwise be built from config.
type Option func(*overrides)

type overrides struct {
	browser   scrape.Browser
	connector scrape.Connector
	snapshots scrape.BlobStore
	publisher scrape.Publisher
}

// WithBrowser replaces the configured page source.
func WithBrowser(b scrape.Browser) Option {
	return func(o *overrides) { o.browser = b }
}

// WithConnector replaces the configured document store.
func WithConnector(c scrape.Connector) Option {
	return func(o *overrides) { o.connector = c }
}

// WithSnapshotStore replaces the configured snapshot backend.
func WithSnapshotStore(s scrape.BlobStore) Option {
	return func(o *overrides) { o.snapshots = s }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p scrape.Publisher) Option {
	return func(o *overrides) { o.publisher = p }
}

// App holds the configured pipeline and the clients it depends on.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *scrape.Pipeline
	metrics  *metrics.Recorder
	closers  []func() error
}

// New wires every collaborator named by cfg. Nothing connects to the network
// except the cloud clients, which only resolve credentials.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}

	browser := o.browser
	if browser == nil {
		b, err := newBrowser(cfg.Browser, logger.Named("page"))
		if err != nil {
			return nil, err
		}
		browser = b
	}

	connector := o.connector
	if connector == nil {
		c, err := newConnector(cfg.Store, logger.Named("store"))
		if err != nil {
			return nil, err
		}
		connector = c
	}

	pipelineOpts := []scrape.Option{scrape.WithObserver(a.metrics)}

	snapshots := o.snapshots
	if snapshots == nil && cfg.Snapshot.Enabled {
		s, err := a.newSnapshotStore(ctx, cfg.Snapshot)
		if err != nil {
			a.Close()
			return nil, err
		}
		snapshots = s
	}
	if snapshots != nil {
		pipelineOpts = append(pipelineOpts, scrape.WithSnapshots(snapshots))
	}

	publisher := o.publisher
	if publisher == nil && cfg.Publish.Backend != "" {
		p, err := a.newPublisher(ctx, cfg.Publish)
		if err != nil {
			a.Close()
			return nil, err
		}
		publisher = p
	}
	if publisher != nil {
		pipelineOpts = append(pipelineOpts, scrape.WithPublisher(publisher))
	}

	pipeline, err := scrape.New(cfg.Pipeline(), browser, connector, logger.Named("pipeline"), pipelineOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.pipeline = pipeline
	return a, nil
}

func newBrowser(cfg config.BrowserConfig, logger *zap.Logger) (scrape.Browser, error) {
	switch cfg.Engine {
	case config.EngineStatic:
		return static.New(static.Config{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavigationTimeout,
		}, logger), nil
	case config.EngineChromedp:
		b, err := headless.New(headless.Config{
			Headless:          cfg.Headless,
			NoSandbox:         cfg.NoSandbox,
			UserAgent:         cfg.UserAgent,
			WindowWidth:       cfg.WindowWidth,
			WindowHeight:      cfg.WindowHeight,
			NavigationTimeout: cfg.NavigationTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init chromedp browser: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", cfg.Engine)
	}
}

func newConnector(cfg config.StoreConfig, logger *zap.Logger) (scrape.Connector, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return mongo.NewConnector(mongo.Config{
			Database:       cfg.Database,
			ConnectTimeout: cfg.ConnectTimeout,
			OpTimeout:      cfg.OpTimeout,
		}, logger), nil
	case config.DriverPostgres:
		return postgres.NewConnector(postgres.Config{
			MaxConns:       cfg.MaxConns,
			ConnectTimeout: cfg.ConnectTimeout,
			AutoCreate:     cfg.AutoCreate,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (a *App) newSnapshotStore(ctx context.Context, cfg config.SnapshotConfig) (scrape.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		s, err := local.New(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		a.logger.Info("storing page snapshots locally", zap.String("dir", cfg.Dir))
		return s, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		s, err := gcs.New(client, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		if err := s.CheckBucket(ctx); err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		a.logger.Info("storing page snapshots in gcs", zap.String("bucket", cfg.Bucket))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}

func (a *App) newPublisher(ctx context.Context, cfg config.PublishConfig) (scrape.Publisher, error) {
	switch cfg.Backend {
	case config.PublishPubSub:
		client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		p, err := pubsub.New(client, map[string]string{"source": "scraper"})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		a.logger.Info("publishing run reports to pubsub", zap.String("topic", cfg.Topic))
		return p, nil
	case config.PublishRedis:
		p, err := redispublisher.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis publisher: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		a.logger.Info("publishing run reports to redis", zap.String("channel", cfg.Topic))
		return p, nil
	default:
		return nil, fmt.Errorf("unknown publish backend %q", cfg.Backend)
	}
}

// Metrics returns the run metrics recorder.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}

// Run executes one scrape and, when a textfile path is configured, exports
// metrics whether or not the scrape aborted. Export failures are only logged.
func (a *App) Run(ctx context.Context) (scrape.Report, error) {
	report, err := a.pipeline.Run(ctx)
	if path := a.cfg.Metrics.Textfile; path != "" {
		if exportErr := a.metrics.WriteTextfile(path); exportErr != nil {
			a.logger.Warn("metrics export failed", zap.String("path", path), zap.Error(exportErr))
		}
	}
	return report, err
}

// Close releases the cloud clients in reverse order of creation.
func (a *App) Close() {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	if err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}
