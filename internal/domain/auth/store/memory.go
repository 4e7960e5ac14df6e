package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
)

type memoryStore struct {
	items       map[string]model.TokenRecord
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory token store. Records are plaintext in process
// memory; the cipher only applies to drivers that persist.
func NewMemory(cfg Config) Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[string]model.TokenRecord),
		ttl:         ttl,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Put(_ context.Context, record model.TokenRecord) error {
	if record.Platform == "" || record.Subject == "" {
		return fmt.Errorf("platform and subject required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	s.mutex.Lock()
	s.items[grantKey(record.Platform, record.Subject)] = record
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, platform, subject string) (model.TokenRecord, error) {
	s.mutex.RLock()
	record, ok := s.items[grantKey(platform, subject)]
	s.mutex.RUnlock()
	if !ok {
		return model.TokenRecord{}, ErrNotFound
	}
	if s.retired(record, time.Now()) {
		return model.TokenRecord{}, ErrNotFound
	}
	return record, nil
}

func (s *memoryStore) Delete(_ context.Context, platform, subject string) error {
	s.mutex.Lock()
	delete(s.items, grantKey(platform, subject))
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]string, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.items))
	for key, record := range s.items {
		if !s.retired(record, now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for key, record := range s.items {
		if s.retired(record, now) {
			delete(s.items, key)
		}
	}
	s.mutex.Unlock()
	return nil
}

// retired reports whether the grant is past retention. An expired access
// token alone does not retire a grant: a refreshable record stays until its
// retention window lapses.
func (s *memoryStore) retired(record model.TokenRecord, now time.Time) bool {
	if record.Refreshable() {
		return s.ttl > 0 && now.After(record.CreatedAt.Add(s.ttl))
	}
	return record.Expired(now)
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := len(s.items)
	active := 0
	for _, record := range s.items {
		if !s.retired(record, now) {
			active++
		}
	}
	return map[string]any{
		"type":        "memory",
		"total":       total,
		"active":      active,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
