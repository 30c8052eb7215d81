// Package mining forms immutable mining batches out of pending sentences.
//
// The Form* functions must run inside a single write transaction; snapshot,
// claim and the mined flip then commit or roll back together.
package mining

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/intake"
	"github.com/japaniel/sentencebase/pkg/vocab"
)

// ErrEmptyBatch is returned when there is nothing to put in a batch.
var ErrEmptyBatch = errors.New("no pending sentences to batch")

// ErrInvalidSentences is returned by FormSelectedBatch when an id is not one
// of the user's pending sentences.
var ErrInvalidSentences = errors.New("invalid sentences provided")

// FormBatch claims every pending sentence of user into a new batch and marks
// the words they exemplify as mined.
func FormBatch(ctx context.Context, tx db.DBExecutor, user string) (db.MiningBatch, error) {
	snapshot, err := intake.PendingSnapshot(ctx, tx, user)
	if err != nil {
		return db.MiningBatch{}, err
	}
	if len(snapshot) == 0 {
		return db.MiningBatch{}, ErrEmptyBatch
	}
	return compose(ctx, tx, user, snapshot)
}

// FormSelectedBatch claims exactly the given pending sentences. Duplicated ids
// are collapsed. Any id that is absent, owned by someone else or already
// claimed fails the whole call with ErrInvalidSentences.
func FormSelectedBatch(ctx context.Context, tx db.DBExecutor, user string, sentenceIDs []int64) (db.MiningBatch, error) {
	wanted := make(map[int64]struct{}, len(sentenceIDs))
	for _, id := range sentenceIDs {
		wanted[id] = struct{}{}
	}
	if len(wanted) == 0 {
		return db.MiningBatch{}, ErrEmptyBatch
	}

	pending, err := intake.PendingSnapshot(ctx, tx, user)
	if err != nil {
		return db.MiningBatch{}, err
	}
	var selected []db.Sentence
	for _, s := range pending {
		if _, ok := wanted[s.ID]; ok {
			selected = append(selected, s)
		}
	}
	if len(selected) != len(wanted) {
		return db.MiningBatch{}, fmt.Errorf("%w: %d of %d ids are not pending sentences of user %s",
			ErrInvalidSentences, len(wanted)-len(selected), len(wanted), user)
	}
	return compose(ctx, tx, user, selected)
}

func compose(ctx context.Context, tx db.DBExecutor, user string, members []db.Sentence) (db.MiningBatch, error) {
	now := db.Now()
	batch, err := db.ScanBatch(tx.QueryRowContext(ctx,
		`INSERT INTO mining_batches (user_id, created_at, updated_at) VALUES (?, ?, ?) RETURNING `+db.BatchColumns,
		user, now, now))
	if err != nil {
		return db.MiningBatch{}, fmt.Errorf("create batch: %w", err)
	}

	sentenceIDs := make([]int64, 0, len(members))
	wordIDs := make([]int64, 0, len(members))
	for _, s := range members {
		sentenceIDs = append(sentenceIDs, s.ID)
		wordIDs = append(wordIDs, s.WordID)
	}

	args := make([]any, 0, len(sentenceIDs)+3)
	args = append(args, batch.ID, now, user)
	for _, id := range sentenceIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE sentences SET mining_batch_id = ?, is_pending = 0, updated_at = ?
		 WHERE user_id = ? AND is_pending = 1 AND id IN (`+db.Placeholders(len(sentenceIDs))+`)`,
		args...)
	if err != nil {
		return db.MiningBatch{}, fmt.Errorf("claim sentences: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return db.MiningBatch{}, err
	}
	if int(claimed) != len(sentenceIDs) {
		// Someone claimed part of the snapshot first; the caller's
		// transaction must roll back rather than commit a partial batch.
		return db.MiningBatch{}, fmt.Errorf("%w: claimed %d of %d sentences", db.ErrConflict, claimed, len(sentenceIDs))
	}

	if _, err := vocab.MarkMined(ctx, tx, user, wordIDs); err != nil {
		return db.MiningBatch{}, err
	}
	return batch, nil
}

// Entry is one sentence of a batch joined with the word it exemplifies.
type Entry struct {
	SentenceID     int64
	Sentence       string
	WordID         int64
	DictionaryForm string
	Reading        string
	Frequency      int
}

// Get returns the user's batch and its entries in sentence order. Batches of
// other users are reported as not found.
func Get(ctx context.Context, ex db.DBExecutor, user string, batchID int64) (db.MiningBatch, []Entry, error) {
	batch, err := db.ScanBatch(ex.QueryRowContext(ctx,
		`SELECT `+db.BatchColumns+` FROM mining_batches WHERE id = ? AND user_id = ?`, batchID, user))
	if errors.Is(err, sql.ErrNoRows) {
		return db.MiningBatch{}, nil, &db.NotFoundError{Entity: "batch", ID: batchID}
	}
	if err != nil {
		return db.MiningBatch{}, nil, fmt.Errorf("get batch: %w", err)
	}

	rows, err := ex.QueryContext(ctx, `SELECT s.id, s.sentence, w.id, w.dictionary_form, w.reading, w.frequency
		FROM sentences s JOIN words w ON w.id = s.word_id
		WHERE s.mining_batch_id = ?
		ORDER BY s.id ASC`, batch.ID)
	if err != nil {
		return db.MiningBatch{}, nil, fmt.Errorf("batch entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SentenceID, &e.Sentence, &e.WordID, &e.DictionaryForm, &e.Reading, &e.Frequency); err != nil {
			return db.MiningBatch{}, nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return db.MiningBatch{}, nil, err
	}
	return batch, entries, nil
}

// List returns the user's batches, newest first.
func List(ctx context.Context, ex db.DBExecutor, user string) ([]db.MiningBatch, error) {
	rows, err := ex.QueryContext(ctx,
		`SELECT `+db.BatchColumns+` FROM mining_batches WHERE user_id = ? ORDER BY id DESC`, user)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := []db.MiningBatch{}
	for rows.Next() {
		b, err := db.ScanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
