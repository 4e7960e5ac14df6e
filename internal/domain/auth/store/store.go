package store

import (
	"context"
	"errors"
	"time"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
)

// ErrNotFound is returned when no grant exists for a (platform, subject) pair.
var ErrNotFound = errors.New("token grant not found")

// Store defines the persistence behaviour required by the token manager.
// Exactly one record is held per (platform, subject).
type Store interface {
	Put(ctx context.Context, record model.TokenRecord) error
	Get(ctx context.Context, platform, subject string) (model.TokenRecord, error)
	Delete(ctx context.Context, platform, subject string) error
	List(ctx context.Context) ([]string, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Cipher seals token payloads before they leave process memory. Drivers that
// persist to disk or a remote store must pass every record through it.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Config describes the high level store selection parameters. TTL is grant
// retention: how long a record may sit unused before cleanup discards it.
type Config struct {
	Driver string
	TTL    time.Duration
	Cipher Cipher
	Redis  *RedisConfig
	SQLite *SQLiteConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// SQLiteConfig provides the database dependency.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

func grantKey(platform, subject string) string {
	return platform + "/" + subject
}

type noopCipher struct{}

func (noopCipher) Seal(plaintext []byte) ([]byte, error)  { return plaintext, nil }
func (noopCipher) Open(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

func cipherOrNoop(c Cipher) Cipher {
	if c == nil {
		return noopCipher{}
	}
	return c
}
