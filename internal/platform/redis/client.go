// Package redis opens the optional shared Redis connection behind
// transaction-id reservations and rate limiting.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"confreg/internal/platform/config"
)

// Client is a connected go-redis client that can report its health.
type Client struct {
	*goredis.Client
}

// Open connects and pings. With no URL configured it returns a nil client and
// callers keep their state in process.
func Open(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	c := &Client{Client: goredis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, err)
	}
	return c, nil
}

// Health pings the server. It is registered as a readiness check.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
