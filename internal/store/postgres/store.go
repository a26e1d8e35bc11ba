// Package postgres implements the document store as one JSONB table per
// collection.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and table management.
type Config struct {
	MaxConns       int32
	ConnectTimeout time.Duration
	// AutoCreate issues CREATE TABLE IF NOT EXISTS before the first insert
	// into each collection.
	AutoCreate bool
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Connector opens pgx pools.
type Connector struct {
	cfg    Config
	logger *zap.Logger
}

// NewConnector builds a Connector.
func NewConnector(cfg Config, logger *zap.Logger) *Connector {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, logger: logger}
}

// Connect parses dsn, opens a pool, and pings it.
func (c *Connector) Connect(ctx context.Context, dsn string) (scrape.Session, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if c.cfg.MaxConns > 0 {
		poolCfg.MaxConns = c.cfg.MaxConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	c.logger.Info("connected to postgres", zap.String("database", poolCfg.ConnConfig.Database))
	return NewSession(pool, c.cfg.AutoCreate), nil
}

// Session writes documents through a pool.
type Session struct {
	pool       execCloser
	autoCreate bool

	mu      sync.Mutex
	created map[string]bool
}

// NewSession wraps an existing pool (primarily for testing).
func NewSession(pool execCloser, autoCreate bool) *Session {
	return &Session{
		pool:       pool,
		autoCreate: autoCreate,
		created:    make(map[string]bool),
	}
}

// Insert stores doc as JSON in the collection's table.
func (s *Session) Insert(ctx context.Context, collection string, doc any) error {
	if !validTableName.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	table := pgx.Identifier{collection}.Sanitize()
	if err := s.ensureTable(ctx, collection, table); err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (doc) VALUES ($1)`, table)
	if _, err := s.pool.Exec(ctx, query, payload); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Session) ensureTable(ctx context.Context, collection, table string) error {
	if !s.autoCreate {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[collection] {
		return nil
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	doc JSONB NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	s.created[collection] = true
	return nil
}

// Close releases the pool.
func (s *Session) Close(context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
