// Package testing provides testing utilities and helpers for the fund service.
package testing

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/yieldfund/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a temp directory with the
// fund schema applied. Returns the database and an idempotent cleanup func.
//
// A real file is used instead of :memory: so concurrent tests exercise the
// same WAL locking as production.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "fundtest_"+name+"_*")
	if err != nil {
		t.Fatalf("Failed to create temporary database dir: %v", err)
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.RemoveAll(dir)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("Warning: Failed to remove temporary database dir %s: %v", dir, err)
		}
	}
}

// GetRawConnection returns the underlying *sql.DB.
func GetRawConnection(db *database.DB) *sql.DB {
	return db.Conn()
}
