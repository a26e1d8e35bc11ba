// Package mongo implements the document store on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultOpTimeout      = 5 * time.Second
)

// Config controls connection and per-operation timeouts.
type Config struct {
	// Database is used when the connection URI does not name one.
	Database       string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

// Connector dials MongoDB.
type Connector struct {
	cfg    Config
	logger *zap.Logger
}

// NewConnector builds a Connector.
func NewConnector(cfg Config, logger *zap.Logger) *Connector {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, logger: logger}
}

// DatabaseName picks the database named in uri, falling back to fallback.
func DatabaseName(uri, fallback string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("parse mongo uri: %w", err)
	}
	if cs.Database != "" {
		return cs.Database, nil
	}
	if strings.TrimSpace(fallback) == "" {
		return "", fmt.Errorf("mongo uri names no database and no fallback is configured")
	}
	return fallback, nil
}

// Connect opens a client and pings the primary.
func (c *Connector) Connect(ctx context.Context, uri string) (scrape.Session, error) {
	dbName, err := DatabaseName(uri, c.cfg.Database)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		if discErr := client.Disconnect(context.WithoutCancel(ctx)); discErr != nil {
			c.logger.Warn("disconnect after failed ping", zap.Error(discErr))
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	c.logger.Info("connected to MongoDB", zap.String("database", dbName))

	return &Session{
		client:    client,
		db:        client.Database(dbName),
		opTimeout: c.cfg.OpTimeout,
	}, nil
}

// Session inserts documents into one database.
type Session struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
}

// NewSession wraps an existing database handle. Close will not disconnect a
// session created this way.
func NewSession(db *mongo.Database, opTimeout time.Duration) *Session {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Session{db: db, opTimeout: opTimeout}
}

// Insert writes doc as a new document in collection.
func (s *Session) Insert(ctx context.Context, collection string, doc any) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.db.Collection(collection).InsertOne(opCtx, doc); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Close disconnects the client owned by the session.
func (s *Session) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect MongoDB: %w", err)
	}
	return nil
}
