package cache

import (
	"context"
	"time"
)

// Cache is a TTL key/value store for idempotent read responses. Values are
// raw vendor-shaped JSON; the cache never interprets them.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	InvalidatePrefix(ctx context.Context, prefix string) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config selects and tunes a cache driver.
type Config struct {
	Driver  string
	TTL     time.Duration
	Cleanup time.Duration
	Redis   *RedisConfig
}

// RedisConfig captures connection options for the redis driver.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Driver identifiers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)
