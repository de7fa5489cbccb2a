// Package cache provides an optional Redis-backed accelerator for the
// lookup caches, for deployments running more than one ingestion
// instance against the same database. It is adapted from a general
// purpose request/response cache; here it is narrowed to the
// get/set-string operations the lookup caches actually need. Every
// method degrades to a silent no-op when the cache is disabled, so
// callers never need to branch on whether Redis is configured.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config describes how to reach the optional Redis instance.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Cache wraps a redis.Client. A disabled Cache holds a nil client and
// every method becomes a no-op.
type Cache struct {
	client  *redis.Client
	enabled bool
}

// New builds a Cache. When cfg.Enabled is false it returns immediately
// without attempting a connection.
func New(cfg Config) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{enabled: false}, nil
	}

	opts := &redis.Options{
		Addr:            fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}

	rc := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping cache: %w", err)
	}

	return &Cache{client: rc, enabled: true}, nil
}

// IsEnabled reports whether this cache is backed by a live connection.
func (c *Cache) IsEnabled() bool {
	return c != nil && c.enabled
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if !c.IsEnabled() {
		return nil
	}
	return c.client.Close()
}

// GetString returns the cached value for key, or ok=false on a miss or
// when the cache is disabled.
func (c *Cache) GetString(ctx context.Context, key string) (string, bool) {
	if !c.IsEnabled() {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// SetString stores a value with the given TTL. Errors are swallowed: the
// Redis tier is a pure accelerator and losing a write never affects
// correctness, since the in-process map and MySQL remain authoritative.
func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	if !c.IsEnabled() {
		return
	}
	c.client.Set(ctx, key, value, ttl)
}
