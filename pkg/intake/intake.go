// Package intake holds each user's pending sentences and enforces the cap on
// how many may wait for batching.
package intake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/sentencebase/pkg/db"
)

// AdmissionReason says why a sentence was refused.
type AdmissionReason int

const (
	// QueueFull means the user already has the maximum number of pending sentences.
	QueueFull AdmissionReason = iota + 1
)

func (r AdmissionReason) String() string {
	switch r {
	case QueueFull:
		return "queue full"
	default:
		return fmt.Sprintf("AdmissionReason(%d)", int(r))
	}
}

// ErrQueueFull is matched by an AdmissionError with reason QueueFull.
var ErrQueueFull = errors.New("pending sentence limit reached")

// AdmissionError is returned by Enqueue when a sentence is refused. Nothing
// is written when it is returned.
type AdmissionError struct {
	Reason AdmissionReason
	User   string
	Limit  int
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission refused for user %s: %s (limit %d)", e.User, e.Reason, e.Limit)
}

// Is makes errors.Is(err, ErrQueueFull) hold for QueueFull refusals.
func (e *AdmissionError) Is(target error) bool {
	return target == ErrQueueFull && e.Reason == QueueFull
}

// Queue is the per-user set of pending sentences, bounded by Limit.
type Queue struct {
	limit int
}

// NewQueue returns a queue admitting at most limit pending sentences per
// user. A limit of 0 refuses every sentence.
func NewQueue(limit int) (*Queue, error) {
	if limit < 0 {
		return nil, fmt.Errorf("pending sentence limit must be >= 0, got %d", limit)
	}
	return &Queue{limit: limit}, nil
}

// Limit returns the configured maximum.
func (q *Queue) Limit() int { return q.limit }

// Enqueue stores text as a pending sentence exemplifying wordID. The pending
// count check and the insert are one statement, so two concurrent calls can
// never both take the last free slot.
func (q *Queue) Enqueue(ctx context.Context, ex db.DBExecutor, user string, wordID int64, text string) (db.Sentence, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return db.Sentence{}, fmt.Errorf("sentence must be non-empty")
	}

	now := db.Now()
	row := ex.QueryRowContext(ctx, `INSERT INTO sentences (user_id, word_id, sentence, is_pending, created_at, updated_at)
		SELECT ?, w.id, ?, 1, ?, ?
		FROM words w
		WHERE w.id = ? AND w.user_id = ?
		  AND (SELECT COUNT(*) FROM sentences WHERE user_id = ? AND is_pending = 1) < ?
		RETURNING `+db.SentenceColumns,
		user, trimmed, now, now, wordID, user, user, q.limit)
	s, err := db.ScanSentence(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return db.Sentence{}, fmt.Errorf("insert sentence: %w", err)
	}

	// Nothing inserted: either the word is not the user's or the queue is full.
	var owned int
	err = ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM words WHERE id = ? AND user_id = ?`, wordID, user).Scan(&owned)
	if err != nil {
		return db.Sentence{}, fmt.Errorf("lookup word: %w", err)
	}
	if owned == 0 {
		return db.Sentence{}, &db.NotFoundError{Entity: "word", ID: wordID}
	}
	return db.Sentence{}, &AdmissionError{Reason: QueueFull, User: user, Limit: q.limit}
}

// PendingSnapshot returns the user's pending sentences in creation order. Run
// it inside the transaction that acts on the result to get a consistent view.
func PendingSnapshot(ctx context.Context, ex db.DBExecutor, user string) ([]db.Sentence, error) {
	rows, err := ex.QueryContext(ctx, `SELECT `+db.SentenceColumns+` FROM sentences
		WHERE user_id = ? AND is_pending = 1
		ORDER BY id ASC`, user)
	if err != nil {
		return nil, fmt.Errorf("pending snapshot: %w", err)
	}
	defer rows.Close()

	out := []db.Sentence{}
	for rows.Next() {
		s, err := db.ScanSentence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountPending returns how many sentences the user has waiting for a batch.
func CountPending(ctx context.Context, ex db.DBExecutor, user string) (int, error) {
	var n int
	err := ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM sentences WHERE user_id = ? AND is_pending = 1`, user).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// Withdraw deletes one of the user's pending sentences. Sentences already
// claimed by a batch cannot be withdrawn and report NotFoundError.
func Withdraw(ctx context.Context, ex db.DBExecutor, user string, sentenceID int64) error {
	res, err := ex.ExecContext(ctx, `DELETE FROM sentences WHERE id = ? AND user_id = ? AND is_pending = 1`, sentenceID, user)
	if err != nil {
		return fmt.Errorf("withdraw sentence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &db.NotFoundError{Entity: "pending sentence", ID: sentenceID}
	}
	return nil
}
