package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/storage"
)

type sqliteStore struct {
	db     *gorm.DB
	ttl    time.Duration
	cipher Cipher
}

// NewSQLite builds a sqlite-backed token store on top of an initialized gorm
// handle. Token material is sealed before it reaches a row; only scopes and
// expiry are stored in the clear for indexing.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires a database handle")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &sqliteStore{
		db:     db,
		ttl:    ttl,
		cipher: cipherOrNoop(cfg.Cipher),
	}, nil
}

func (s *sqliteStore) Put(ctx context.Context, record model.TokenRecord) error {
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
	scopes, err := json.Marshal(record.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}

	grant := storage.TokenGrant{
		Platform:  record.Platform,
		Subject:   record.Subject,
		Sealed:    sealed,
		Scopes:    datatypes.JSON(scopes),
		ExpiresAt: record.ExpiresAt,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "subject"}},
		DoUpdates: clause.AssignmentColumns([]string{"sealed", "scopes", "expires_at", "updated_at"}),
	}).Create(&grant).Error
	if err != nil {
		return fmt.Errorf("upsert token grant: %w", err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, platform, subject string) (model.TokenRecord, error) {
	var grant storage.TokenGrant
	err := s.db.WithContext(ctx).
		Where("platform = ? AND subject = ?", platform, subject).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TokenRecord{}, ErrNotFound
	}
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("query token grant: %w", err)
	}

	plaintext, err := s.cipher.Open(grant.Sealed)
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

func (s *sqliteStore) Delete(ctx context.Context, platform, subject string) error {
	err := s.db.WithContext(ctx).
		Where("platform = ? AND subject = ?", platform, subject).
		Delete(&storage.TokenGrant{}).Error
	if err != nil {
		return fmt.Errorf("delete token grant: %w", err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) ([]string, error) {
	var grants []storage.TokenGrant
	err := s.db.WithContext(ctx).
		Select("platform", "subject").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("list token grants: %w", err)
	}

	keys := make([]string, 0, len(grants))
	for _, grant := range grants {
		keys = append(keys, grantKey(grant.Platform, grant.Subject))
	}
	return keys, nil
}

// CleanupExpired removes grants past the retention window. Expiry of the
// access token alone does not qualify; refresh tokens keep a grant alive.
func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	cutoff := time.Now().Add(-s.ttl)
	err := s.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&storage.TokenGrant{}).Error
	if err != nil {
		return fmt.Errorf("cleanup token grants: %w", err)
	}
	return nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.TokenGrant{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count token grants: %w", err)
	}
	return map[string]any{
		"type":        "sqlite",
		"total":       total,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *sqliteStore) Close(_ context.Context) error {
	return nil
}
