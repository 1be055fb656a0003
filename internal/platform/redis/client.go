package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"attest/internal/platform/config"
)

// Client wraps the go-redis client used for sessions and the status cache.
type Client struct {
	*redis.Client
}

// New connects to Redis. It returns nil, nil when no URL is configured so
// callers can fall back to in-process stores.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("redis not configured")
	}
	return c.Ping(ctx).Err()
}

// Close releases the pool. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.Client.Close()
}
