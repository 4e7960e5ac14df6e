package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
)

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	cipher Cipher
}

// NewRedis builds a redis-backed token store. Every record is sealed by the
// cipher before it is written; redis only ever sees ciphertext.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis store requires redis configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "pim:grant:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}

	return &redisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		cipher: cipherOrNoop(cfg.Cipher),
	}, nil
}

func (s *redisStore) key(platform, subject string) string {
	return s.prefix + grantKey(platform, subject)
}

func (s *redisStore) Put(ctx context.Context, record model.TokenRecord) error {
	if record.Platform == "" || record.Subject == "" {
		return fmt.Errorf("platform and subject required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	plaintext, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}
	sealed, err := s.cipher.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal token record: %w", err)
	}

	if err := s.client.Set(ctx, s.key(record.Platform, record.Subject), sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, platform, subject string) (model.TokenRecord, error) {
	sealed, err := s.client.Get(ctx, s.key(platform, subject)).Bytes()
	if err == redis.Nil {
		return model.TokenRecord{}, ErrNotFound
	}
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("redis get: %w", err)
	}

	plaintext, err := s.cipher.Open(sealed)
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("open token record: %w", err)
	}

	var record model.TokenRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return model.TokenRecord{}, fmt.Errorf("unmarshal token record: %w", err)
	}
	if !record.Refreshable() && record.Expired(time.Now()) {
		return model.TokenRecord{}, ErrNotFound
	}
	return record, nil
}

func (s *redisStore) Delete(ctx context.Context, platform, subject string) error {
	if err := s.client.Del(ctx, s.key(platform, subject)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *redisStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// CleanupExpired is a no-op for redis: key TTLs handle retention.
func (s *redisStore) CleanupExpired(_ context.Context) error {
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        "redis",
		"total":       len(keys),
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) Close(_ context.Context) error {
	return s.client.Close()
}
