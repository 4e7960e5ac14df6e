package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/storage"
)

func TestFactoryMemory(t *testing.T) {
	store, err := New(Config{Driver: DriverMemory}, Dependencies{})
	if err != nil {
		t.Fatalf("New memory store: %v", err)
	}
	defer store.Close(context.Background())
}

func TestFactorySQLite(t *testing.T) {
	db, err := storage.OpenForTest()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	store, err := New(Config{
		Driver: DriverSQLite,
		TTL:    time.Hour,
	}, Dependencies{SQLiteDB: db})
	if err != nil {
		t.Fatalf("New sqlite store: %v", err)
	}
	defer store.Close(context.Background())

	record := model.TokenRecord{
		Platform:    "microsoft",
		Subject:     "factory@contoso.com",
		AccessToken: "access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	got, err := store.Get(context.Background(), record.Platform, record.Subject)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.AccessToken != record.AccessToken {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestFactoryRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	store, err := New(Config{
		Driver: DriverRedis,
		TTL:    time.Hour,
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("New redis store: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Put(context.Background(), model.TokenRecord{
		Platform:    "google",
		Subject:     "factory@gmail.com",
		AccessToken: "access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
}

func TestFactoryUnsupported(t *testing.T) {
	if _, err := New(Config{Driver: "unknown"}, Dependencies{}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestFactorySQLiteRequiresHandle(t *testing.T) {
	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatalf("expected error without database handle")
	}
}
