package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Global database instance shared by the sqlite-backed stores.
var db *gorm.DB

// InitDatabase initializes the SQLite database used for token persistence.
func InitDatabase(dsn string) error {
	if db != nil {
		return nil
	}

	if dsn == "" {
		dsn = filepath.Join("data", "unified-pim.db")
	}
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	var err error
	db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&TokenGrant{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// GetDB returns the global database instance.
func GetDB() *gorm.DB {
	if db == nil {
		panic("database not initialized, call InitDatabase() first")
	}
	return db
}

// OpenForTest opens an isolated in-memory database for package tests.
func OpenForTest() (*gorm.DB, error) {
	testDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := testDB.AutoMigrate(&TokenGrant{}); err != nil {
		return nil, err
	}
	return testDB, nil
}

// TokenGrant is the persisted token record for one (platform, subject) pair.
// The Sealed column carries the AES-GCM encrypted token payload; plaintext
// token material never reaches the database.
type TokenGrant struct {
	ID        uint           `gorm:"primaryKey"`
	Platform  string         `gorm:"index:idx_grant,unique;not null"`
	Subject   string         `gorm:"index:idx_grant,unique;not null"`
	Sealed    []byte         `gorm:"not null"`
	Scopes    datatypes.JSON `json:"scopes"`
	ExpiresAt time.Time      `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm pluralization.
func (TokenGrant) TableName() string {
	return "token_grants"
}
