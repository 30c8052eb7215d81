package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// ErrConflict reports that a transaction could not acquire the database
// because a concurrent writer held it. The whole operation may be retried.
var ErrConflict = errors.New("transaction conflict")

// NotFoundError names the entity that is missing.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsBusy reports whether err is a lock contention error from either driver.
func IsBusy(err error) bool {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.Code == sqlite3.ErrBusy || mattnErr.Code == sqlite3.ErrLocked
	}
	var moderncErr *moderncsqlite.Error
	if errors.As(err, &moderncErr) {
		code := moderncErr.Code() & 0xff
		return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
	}
	return false
}

// isConstraintErr returns true when the error indicates a unique/constraint violation
func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.Code == sqlite3.ErrConstraint
	}
	var moderncErr *moderncsqlite.Error
	if errors.As(err, &moderncErr) {
		return moderncErr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// Classify maps driver lock contention onto ErrConflict and leaves other errors alone.
func Classify(err error) error {
	if IsBusy(err) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// WithTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise. Connections opened through DSN begin
// immediate transactions, so fn runs serialized against other writers.
func WithTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if err := fn(tx); err != nil {
		return Classify(err)
	}
	if err := tx.Commit(); err != nil {
		return Classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// ErrUserExists is returned by CreateUser for a duplicate id.
var ErrUserExists = errors.New("user already exists")

// CreateUser registers a user id. Identity itself is owned elsewhere; this row
// only anchors foreign keys.
func CreateUser(ctx context.Context, db DBExecutor, id string) (User, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return User{}, fmt.Errorf("user id must be non-empty")
	}
	var u User
	err := db.QueryRowContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) RETURNING id, created_at`,
		trimmed, Now(),
	).Scan(&u.ID, timestamp{&u.CreatedAt})
	if err != nil {
		if isConstraintErr(err) {
			return User{}, fmt.Errorf("%w: %s", ErrUserExists, trimmed)
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// RequireUser returns a NotFoundError when the user does not exist.
func RequireUser(ctx context.Context, db DBExecutor, id string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	return nil
}

// UsersWithPending lists, in id order, the users that have at least one pending sentence.
func UsersWithPending(ctx context.Context, db DBExecutor) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM sentences WHERE is_pending = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Placeholders returns "?, ?, ..." with n markers for IN clauses.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
