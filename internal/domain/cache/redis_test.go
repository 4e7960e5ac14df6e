package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestRedisCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := NewRedis(Config{
		TTL:   time.Minute,
		Redis: &RedisConfig{Addr: mr.Addr()},
	})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisCache(t)

	if _, hit, err := c.Get(ctx, "missing"); err != nil || hit {
		t.Fatalf("expected miss, hit=%v err=%v", hit, err)
	}

	if err := c.Set(ctx, "email:1", []byte(`{"id":"1"}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, hit, err := c.Get(ctx, "email:1")
	if err != nil || !hit {
		t.Fatalf("expected hit, hit=%v err=%v", hit, err)
	}
	if string(value) != `{"id":"1"}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestRedisCacheTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)

	if err := c.Set(ctx, "email:1", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, hit, _ := c.Get(ctx, "email:1"); hit {
		t.Fatalf("expected expiry after ttl")
	}
}

func TestRedisCacheInvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisCache(t)

	_ = c.Set(ctx, "microsoft/email:1", []byte("a"), time.Minute)
	_ = c.Set(ctx, "microsoft/email:2", []byte("b"), time.Minute)
	_ = c.Set(ctx, "google/email:1", []byte("c"), time.Minute)

	if err := c.InvalidatePrefix(ctx, "microsoft/email:"); err != nil {
		t.Fatalf("InvalidatePrefix: %v", err)
	}

	if _, hit, _ := c.Get(ctx, "microsoft/email:1"); hit {
		t.Fatalf("prefix entry survived invalidation")
	}
	if _, hit, _ := c.Get(ctx, "google/email:1"); !hit {
		t.Fatalf("unrelated entry was invalidated")
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["entries"].(int) != 1 {
		t.Fatalf("expected one entry, got %v", stats["entries"])
	}
}
