package db

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Supported database/sql driver names.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
	// DriverPure is modernc.org/sqlite, usable with CGO_ENABLED=0.
	DriverPure = "sqlite"
)

// busyTimeoutMillis bounds how long a writer waits for another writer's lock
// before the driver reports SQLITE_BUSY.
const busyTimeoutMillis = 5000

// DSN builds a connection string for path. Every transaction opened through it
// takes the write lock at BEGIN (immediate), foreign keys are enforced and the
// journal runs in WAL mode so readers do not block the writer.
func DSN(driver, path string) (string, error) {
	switch driver {
	case DriverCGO:
		return fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_foreign_keys=1&_journal_mode=WAL",
			path, busyTimeoutMillis), nil
	case DriverPure:
		return fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
			path, busyTimeoutMillis), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open opens the database at path with the given driver and applies the schema.
func Open(driver, path string) (*sql.DB, error) {
	dsn, err := DSN(driver, path)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return conn, nil
}

// InitDB runs the embedded schema on the given DB connection. It is idempotent.
func InitDB(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}
