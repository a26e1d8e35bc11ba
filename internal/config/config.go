// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

// Supported engines and store drivers.
const (
	EngineChromedp = "chromedp"
	EngineStatic   = "static"

	DriverMongo    = "mongo"
	DriverPostgres = "postgres"

	BackendLocal = "local"
	BackendGCS   = "gcs"

	PublishPubSub = "pubsub"
	PublishRedis  = "redis"
)

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	Target    TargetConfig     `mapstructure:"target"`
	Browser   BrowserConfig    `mapstructure:"browser"`
	Store     StoreConfig      `mapstructure:"store"`
	Selectors scrape.Selectors `mapstructure:"selectors"`
	Snapshot  SnapshotConfig   `mapstructure:"snapshot"`
	Publish   PublishConfig    `mapstructure:"publish"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Schedule  ScheduleConfig   `mapstructure:"schedule"`
}

// TargetConfig names the page to scrape.
type TargetConfig struct {
	URL string `mapstructure:"url"`
}

// BrowserConfig selects and tunes the page source.
type BrowserConfig struct {
	Engine            string        `mapstructure:"engine"`
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
}

// StoreConfig controls the document store connection.
type StoreConfig struct {
	Driver         string        `mapstructure:"driver"`
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	OpTimeout      time.Duration `mapstructure:"op_timeout"`
	MaxConns       int32         `mapstructure:"max_conns"`
	AutoCreate     bool          `mapstructure:"auto_create"`
}

// SnapshotConfig controls storage of the rendered results page.
type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PublishConfig selects where run reports are sent. An empty backend disables publishing.
type PublishConfig struct {
	Backend   string `mapstructure:"backend"`
	Topic     string `mapstructure:"topic"`
	ProjectID string `mapstructure:"project_id"`
	RedisURL  string `mapstructure:"redis_url"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features and optional file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Location string `mapstructure:"location"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error; loaded reports whether the file was read.
func LoadEnvFile(path string) (loaded bool, err error) {
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load env file %s: %w", path, err)
	}
	return true, nil
}

// Load builds a Config from defaults, an optional file, and SCRAPER_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.url", "https://www.amazon.com/s?k=food")
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.navigation_timeout", 60*time.Second)
	v.SetDefault("browser.ready_timeout", 30*time.Second)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("store.uri", "mongodb://127.0.0.1:27017/fooddb")
	v.SetDefault("store.database", "fooddb")
	v.SetDefault("store.collection", "products")
	v.SetDefault("store.connect_timeout", 10*time.Second)
	v.SetDefault("store.op_timeout", 5*time.Second)
	v.SetDefault("store.max_conns", 2)
	v.SetDefault("store.auto_create", true)
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.backend", BackendLocal)
	v.SetDefault("snapshot.dir", "data/snapshots")
	v.SetDefault("snapshot.bucket", "")
	v.SetDefault("snapshot.prefix", "pages")
	v.SetDefault("publish.backend", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.redis_url", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 64)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("schedule.cron", "@hourly")
	v.SetDefault("schedule.location", "UTC")

	sel := scrape.DefaultSelectors()
	v.SetDefault("selectors.site_marker", sel.SiteMarker)
	v.SetDefault("selectors.results_marker", sel.ResultsMarker)
	v.SetDefault("selectors.items", sel.Items)
	for name, spec := range map[string]scrape.FieldSpec{
		"name":        sel.Fields.Name,
		"weight":      sel.Fields.Weight,
		"price":       sel.Fields.Price,
		"ingredients": sel.Fields.Ingredients,
		"nutrition":   sel.Fields.Nutrition,
		"about":       sel.Fields.About,
		"image":       sel.Fields.Image,
		"vegetarian":  sel.Fields.Vegetarian,
	} {
		v.SetDefault("selectors.fields."+name+".selector", spec.Selector)
		v.SetDefault("selectors.fields."+name+".attribute", spec.Attribute)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Target.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target.url must be an absolute http(s) URL")
	}
	switch c.Browser.Engine {
	case EngineChromedp, EngineStatic:
	default:
		return fmt.Errorf("browser.engine must be %q or %q", EngineChromedp, EngineStatic)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}
	if c.Browser.ReadyTimeout <= 0 {
		return fmt.Errorf("browser.ready_timeout must be > 0")
	}
	switch c.Store.Driver {
	case DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("store.driver must be %q or %q", DriverMongo, DriverPostgres)
	}
	if strings.TrimSpace(c.Store.URI) == "" {
		return fmt.Errorf("store.uri is required")
	}
	if strings.TrimSpace(c.Store.Collection) == "" {
		return fmt.Errorf("store.collection is required")
	}
	if strings.TrimSpace(c.Selectors.Items) == "" {
		return fmt.Errorf("selectors.items is required")
	}
	if c.Snapshot.Enabled {
		switch c.Snapshot.Backend {
		case BackendLocal:
			if c.Snapshot.Dir == "" {
				return fmt.Errorf("snapshot.dir is required for the local backend")
			}
		case BackendGCS:
			if c.Snapshot.Bucket == "" {
				return fmt.Errorf("snapshot.bucket is required for the gcs backend")
			}
		default:
			return fmt.Errorf("snapshot.backend must be %q or %q", BackendLocal, BackendGCS)
		}
	}
	switch c.Publish.Backend {
	case "":
	case PublishPubSub:
		if c.Publish.ProjectID == "" {
			return fmt.Errorf("publish.project_id is required for the pubsub backend")
		}
	case PublishRedis:
		if c.Publish.RedisURL == "" {
			return fmt.Errorf("publish.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("publish.backend must be empty, %q or %q", PublishPubSub, PublishRedis)
	}
	if c.Publish.Backend != "" && c.Publish.Topic == "" {
		return fmt.Errorf("publish.topic is required when publish.backend is set")
	}
	return nil
}

// Pipeline converts the loaded values into the pipeline's run configuration.
func (c Config) Pipeline() scrape.Config {
	return scrape.Config{
		TargetURL:      c.Target.URL,
		StoreURI:       c.Store.URI,
		Collection:     c.Store.Collection,
		ReadyTimeout:   c.Browser.ReadyTimeout,
		Selectors:      c.Selectors,
		SnapshotPrefix: c.Snapshot.Prefix,
		Topic:          c.Publish.Topic,
	}
}
