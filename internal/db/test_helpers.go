package db

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/flowcal/internal/monitoring"
)

// setupTestDB creates a migrated database in a per-test temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(t.Logf)

	db, err := NewDB(filepath.Join(t.TempDir(), "flowcal_test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		monitoring.SetLogger(nil)
	})
	return db
}
