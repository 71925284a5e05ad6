package repo

import (
	"context"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Em-Vi/MediScan/internal/domain"
)

// newRepoDB opens a file-backed database in a temp dir. With migrate=false the
// schema is left empty so error paths can be exercised.
func newRepoDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "repo_test.db")
	db, err := gorm.Open(sqlite.Open(dsn+"?"+connPragmas), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Release the file handle before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, "user", email, "hash", nil)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedSession(t *testing.T, db *gorm.DB, userID string) *domain.Session {
	t.Helper()
	s, err := CreateSession(context.Background(), db, userID, domain.DefaultSessionTitle)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}
