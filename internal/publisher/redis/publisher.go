// Package redis publishes run reports on Redis channels and keeps the latest
// report per channel under "<channel>:last".
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Publisher sends JSON payloads with PUBLISH.
type Publisher struct {
	client client
}

// New connects to the Redis server at url (redis://host:port/db) and pings it.
func New(ctx context.Context, url string) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Publisher{client: c}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(c client) *Publisher {
	return &Publisher{client: c}
}

// Publish sends payload to channel and records it as the channel's latest
// report. The returned id is the number of subscribers that received it.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("channel is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	if err := p.client.Set(ctx, channel+":last", data, 0).Err(); err != nil {
		return "", fmt.Errorf("store latest report: %w", err)
	}
	return strconv.FormatInt(receivers, 10), nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
