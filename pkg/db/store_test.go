package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, driver string) *sql.DB {
	conn, err := Open(driver, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInitDBCreatesSchema(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPure} {
		t.Run(driver, func(t *testing.T) {
			conn := setupTestDB(t, driver)

			for _, table := range []string{"users", "words", "sentences", "mining_batches"} {
				var name string
				err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
				require.NoError(t, err, "table %s missing", table)
			}

			// Running the schema again must be harmless.
			require.NoError(t, InitDB(conn))
		})
	}
}

func TestCreateUser(t *testing.T) {
	conn := setupTestDB(t, DriverCGO)
	ctx := context.Background()

	u, err := CreateUser(ctx, conn, "  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = CreateUser(ctx, conn, "alice")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = CreateUser(ctx, conn, " ")
	assert.Error(t, err)
}

func TestRequireUser(t *testing.T) {
	conn := setupTestDB(t, DriverCGO)
	ctx := context.Background()

	err := RequireUser(ctx, conn, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "user", nf.Entity)

	_, err = CreateUser(ctx, conn, "bob")
	require.NoError(t, err)
	assert.NoError(t, RequireUser(ctx, conn, "bob"))
}

func TestSchemaGuardsInvariants(t *testing.T) {
	conn := setupTestDB(t, DriverCGO)
	ctx := context.Background()
	_, err := CreateUser(ctx, conn, "u")
	require.NoError(t, err)

	now := Now()
	res, err := conn.Exec(`INSERT INTO words (user_id, dictionary_form, reading, created_at, updated_at) VALUES ('u', '猫', 'ネコ', ?, ?)`, now, now)
	require.NoError(t, err)
	wordID, _ := res.LastInsertId()

	res, err = conn.Exec(`INSERT INTO mining_batches (user_id, created_at, updated_at) VALUES ('u', ?, ?)`, now, now)
	require.NoError(t, err)
	batchID, _ := res.LastInsertId()

	// pending sentences cannot carry a batch id
	_, err = conn.Exec(`INSERT INTO sentences (user_id, word_id, sentence, is_pending, mining_batch_id, created_at, updated_at) VALUES ('u', ?, 'x', 1, ?, ?, ?)`, wordID, batchID, now, now)
	require.Error(t, err)

	res, err = conn.Exec(`INSERT INTO sentences (user_id, word_id, sentence, created_at, updated_at) VALUES ('u', ?, 'x', ?, ?)`, wordID, now, now)
	require.NoError(t, err)
	sentenceID, _ := res.LastInsertId()

	_, err = conn.Exec(`UPDATE sentences SET is_pending = 0, mining_batch_id = ? WHERE id = ?`, batchID, sentenceID)
	require.NoError(t, err)

	// a claimed sentence cannot move to another batch
	res, err = conn.Exec(`INSERT INTO mining_batches (user_id, created_at, updated_at) VALUES ('u', ?, ?)`, now, now)
	require.NoError(t, err)
	otherBatch, _ := res.LastInsertId()
	_, err = conn.Exec(`UPDATE sentences SET mining_batch_id = ? WHERE id = ?`, otherBatch, sentenceID)
	assert.Error(t, err)

	// mined words stay mined, frequencies never drop
	_, err = conn.Exec(`UPDATE words SET is_mined = 1 WHERE id = ?`, wordID)
	require.NoError(t, err)
	_, err = conn.Exec(`UPDATE words SET is_mined = 0 WHERE id = ?`, wordID)
	assert.Error(t, err)
	_, err = conn.Exec(`UPDATE words SET frequency = 0 WHERE id = ?`, wordID)
	assert.Error(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := setupTestDB(t, DriverCGO)
	ctx := context.Background()

	boom := errors.New("boom")
	err := WithTx(ctx, conn, func(tx *sql.Tx) error {
		if _, err := CreateUser(ctx, tx, "carol"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, RequireUser(ctx, conn, "carol"), ErrNotFound)

	err = WithTx(ctx, conn, func(tx *sql.Tx) error {
		_, err := CreateUser(ctx, tx, "carol")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, RequireUser(ctx, conn, "carol"))
}

func TestClassifyBusy(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.True(t, IsBusy(busy))
	assert.ErrorIs(t, Classify(busy), ErrConflict)

	plain := errors.New("disk on fire")
	assert.False(t, IsBusy(plain))
	assert.Equal(t, plain, Classify(plain))
}

func TestUsersWithPending(t *testing.T) {
	conn := setupTestDB(t, DriverCGO)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		_, err := CreateUser(ctx, conn, id)
		require.NoError(t, err)
	}
	now := Now()
	for _, id := range []string{"b", "a"} {
		res, err := conn.Exec(`INSERT INTO words (user_id, dictionary_form, reading, created_at, updated_at) VALUES (?, '猫', 'ネコ', ?, ?)`, id, now, now)
		require.NoError(t, err)
		wordID, _ := res.LastInsertId()
		_, err = conn.Exec(`INSERT INTO sentences (user_id, word_id, sentence, created_at, updated_at) VALUES (?, ?, '猫だ', ?, ?)`, id, wordID, now, now)
		require.NoError(t, err)
	}

	users, err := UsersWithPending(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, users)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}
