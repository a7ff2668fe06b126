// Package testhelpers provides reusable testing utilities:
// in-memory test databases and data builders for the core models.
package testhelpers

import (
	"testing"

	"github.com/threadline/threadline/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an isolated in-memory sqlite database with the full schema
// migrated.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Each pooled sqlite :memory: connection is its own database; pin the
	// pool to one so concurrent test goroutines share the schema.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access test database pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// MustCreate inserts a record and fails the test on error.
func MustCreate(t *testing.T, db *gorm.DB, record interface{}) {
	t.Helper()
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("failed to create %T: %v", record, err)
	}
}

// StrPtr returns a pointer to the given string.
func StrPtr(s string) *string {
	return &s
}

// PlatformPtr returns a pointer to the given platform tag.
func PlatformPtr(p database.Platform) *database.Platform {
	return &p
}
