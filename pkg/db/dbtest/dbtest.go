// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/japaniel/sentencebase/pkg/db"
)

// Open returns a migrated database stored in t.TempDir(), closed on cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	return OpenDriver(t, db.DriverCGO)
}

// OpenDriver is Open with an explicit driver.
func OpenDriver(t testing.TB, driver string) *sql.DB {
	t.Helper()
	conn, err := db.Open(driver, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// User registers id in conn and returns it.
func User(t testing.TB, conn *sql.DB, id string) string {
	t.Helper()
	if _, err := db.CreateUser(context.Background(), conn, id); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return id
}
