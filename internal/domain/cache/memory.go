package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) > e.ttl
}

type memoryCache struct {
	entries map[string]memoryEntry
	mutex   sync.RWMutex

	defaultTTL time.Duration
	sweepFreq  time.Duration
	stop       chan struct{}
	stopOnce   sync.Once

	hits   int64
	misses int64

	now func() time.Time
}

// NewMemory builds an in-process cache. Expiry is lazy on read; a background
// sweep keeps memory bounded.
func NewMemory(cfg Config) Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	sweep := cfg.Cleanup
	if sweep <= 0 {
		sweep = time.Minute
	}
	c := &memoryCache{
		entries:    make(map[string]memoryEntry),
		defaultTTL: ttl,
		sweepFreq:  sweep,
		stop:       make(chan struct{}),
		now:        time.Now,
	}
	go c.sweepLoop()
	return c
}

func (c *memoryCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryCache) sweep() {
	now := c.now()
	c.mutex.Lock()
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
		}
	}
	c.mutex.Unlock()
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(c.now()) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return entry.value, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mutex.Lock()
	c.entries[key] = memoryEntry{value: value, storedAt: c.now(), ttl: ttl}
	c.mutex.Unlock()
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, key string) error {
	c.mutex.Lock()
	delete(c.entries, key)
	c.mutex.Unlock()
	return nil
}

func (c *memoryCache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mutex.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mutex.Unlock()
	return nil
}

func (c *memoryCache) Stats(_ context.Context) (map[string]any, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return map[string]any{
		"type":    "memory",
		"entries": len(c.entries),
		"hits":    c.hits,
		"misses":  c.misses,
	}, nil
}

func (c *memoryCache) Close(_ context.Context) error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	return nil
}
