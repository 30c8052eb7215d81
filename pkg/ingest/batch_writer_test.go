package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/japaniel/sentencebase/pkg/db/dbtest"
	"github.com/japaniel/sentencebase/pkg/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countWords(t *testing.T, conn *sql.DB, user string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM words WHERE user_id = ?", user).Scan(&n))
	return n
}

func upsertWrite(user, form string) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := vocab.UpsertOccurrence(ctx, tx, user, form, form)
		return err
	}
}

func TestBatchWriterTransactions(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")

	bw := NewBatchWriter(conn, 2, 0)
	var errs []error
	var mu sync.Mutex
	bw.OnError = func(e error) {
		mu.Lock()
		errs = append(errs, e)
		mu.Unlock()
	}

	require.NoError(t, bw.Submit(upsertWrite(user, "猫")))
	require.NoError(t, bw.Submit(upsertWrite(user, "犬")))

	// Close and wait for pending batches to be committed. Use a timeout to avoid hanging tests.
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- bw.Close()
	}()
	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch commit/close")
	}

	assert.Empty(t, errs)
	assert.Equal(t, 2, countWords(t, conn, user))
}

func TestBatchWriterRollback(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")

	bw := NewBatchWriter(conn, 2, 0)
	errCh := make(chan error, 1)
	bw.OnError = func(e error) {
		errCh <- e
	}

	// Batch of 2: first succeeds, second fails. Whole batch should roll back.
	require.NoError(t, bw.Submit(upsertWrite(user, "猫")))
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return fmt.Errorf("intentional error")
	}))

	assert.Error(t, bw.Close())

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "intentional error")
	default:
		t.Fatal("expected OnError to be called")
	}
	assert.Equal(t, 0, countWords(t, conn, user))
}

func TestBatchWriterHoldsLockerPerBatch(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")

	var locks userLocks
	bw := NewBatchWriter(conn, 1, 0)
	bw.Locker = locks.locker(user)

	held := make(chan int, 1)
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		held <- locks.held()
		return nil
	}))
	require.NoError(t, bw.Close())

	assert.Equal(t, 1, <-held)
	assert.Equal(t, 0, locks.held())
}

func TestBatchWriterWaitsForUserLock(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")

	var locks userLocks
	unlock := locks.lock(user)

	bw := NewBatchWriter(conn, 1, 0)
	bw.Locker = locks.locker(user)
	require.NoError(t, bw.Submit(upsertWrite(user, "猫")))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, countWords(t, conn, user), "batch must not commit while the user lock is held")

	unlock()
	require.NoError(t, bw.Close())
	assert.Equal(t, 1, countWords(t, conn, user))
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	bw := NewBatchWriter(nil, 5, 0)
	var mu sync.Mutex
	called := 0
	for i := 0; i < 12; i++ {
		require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			mu.Lock()
			called++
			mu.Unlock()
			return nil
		}))
	}
	require.NoError(t, bw.Close())
	assert.Equal(t, 12, called)
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	bw := NewBatchWriter(nil, 10, 50*time.Millisecond)
	flushed := make(chan struct{})
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		close(flushed)
		return nil
	}))

	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("expected interval flush before Close")
	}
	require.NoError(t, bw.Close())
}

func TestBatchWriterSubmitAfterClose(t *testing.T) {
	bw := NewBatchWriter(nil, 1, 0)
	require.NoError(t, bw.Close())
	assert.ErrorIs(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }), ErrBatchWriterClosed)
}

func TestBatchWriterDropsBatchOnCancel(t *testing.T) {
	// The committer is kept busy and commitCh full when ctx is canceled.
	bw := NewBatchWriter(nil, 1, 0)
	defer bw.Close()
	errCh := make(chan error, 1)
	bw.OnError = func(e error) {
		errCh <- e
	}

	blocker := make(chan struct{})

	// First batch blocks the committer until released.
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		<-blocker
		return nil
	}))
	// Second and third batches fill commitCh.
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }))
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }))

	bw.cancel()

	// This flush finds commitCh full and ctx done, so the batch is dropped.
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }))

	close(blocker)

	select {
	case e := <-errCh:
		if e == nil || !strings.Contains(e.Error(), "dropping batch") {
			t.Fatalf("unexpected OnError value: %v", e)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected OnError to be called when batch dropped")
	}
}
