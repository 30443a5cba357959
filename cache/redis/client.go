// Package redis provides a Redis-backed cache.Cache for deployments that run
// several frontend replicas behind one load balancer.
package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/escribo/escribo-web/cache"
	"github.com/escribo/escribo-web/cache/internal/tracking"
)

const system = "redis"

// Client implements cache.Cache using Redis as the backend.
type Client struct {
	client *redis.Client
	config *Config
	closed atomic.Bool
}

var _ cache.Cache = (*Client)(nil)

// NewClient creates a Redis cache client.
// Validates configuration and checks the connection with PING.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, cache.NewConnectionError("ping", cfg.Address(), err)
	}

	return &Client{client: client, config: cfg}, nil
}

func (c *Client) key(key string) string {
	return c.config.KeyPrefix + key
}

// Get retrieves a value from the cache.
// Returns cache.ErrNotFound if the key doesn't exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, cache.ErrClosed
	}

	start := time.Now()
	result, err := c.client.Get(ctx, c.key(key)).Bytes()
	duration := time.Since(start)

	if errors.Is(err, redis.Nil) {
		tracking.RecordCacheOperation(ctx, system, tracking.OpGet, duration, false, nil, tracking.Keyspace(key))
		return nil, cache.ErrNotFound
	}
	tracking.RecordCacheOperation(ctx, system, tracking.OpGet, duration, err == nil, err, tracking.Keyspace(key))
	if err != nil {
		return nil, cache.NewOperationError("get", key, err)
	}
	return result, nil
}

// Set stores a value in the cache with the specified TTL.
// TTL of 0 means no expiration.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}

	start := time.Now()
	err := c.client.Set(ctx, c.key(key), value, ttl).Err()
	tracking.RecordCacheOperation(ctx, system, tracking.OpSet, time.Since(start), false, err, tracking.Keyspace(key))

	if err != nil {
		return cache.NewOperationError("set", key, err)
	}
	return nil
}

// Delete removes a key from the cache.
// Does not return error if key doesn't exist.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Del(ctx, c.key(key)).Err()
	tracking.RecordCacheOperation(ctx, system, tracking.OpDelete, time.Since(start), false, err, tracking.Keyspace(key))

	if err != nil {
		return cache.NewOperationError("delete", key, err)
	}
	return nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	tracking.RecordCacheOperation(ctx, system, tracking.OpHealth, time.Since(start), false, err, "")

	if err != nil {
		return cache.NewConnectionError("ping", c.config.Address(), err)
	}
	return nil
}

// Close closes the Redis client. Closing twice returns cache.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	return c.client.Close()
}
