// Package vocab is the per-user vocabulary ledger: word frequencies and the
// mined flag.
package vocab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/japaniel/sentencebase/pkg/db"
)

// UpsertOccurrence records one occurrence of (dictionaryForm, reading) for
// user. The first occurrence creates the word with frequency 1; later ones
// increment it. The single UPSERT statement makes concurrent calls for the
// same key lose no increments.
func UpsertOccurrence(ctx context.Context, ex db.DBExecutor, user, dictionaryForm, reading string) (db.Word, error) {
	form := strings.TrimSpace(dictionaryForm)
	if form == "" {
		return db.Word{}, fmt.Errorf("dictionary form must be non-empty")
	}
	reading = strings.TrimSpace(reading)

	now := db.Now()
	row := ex.QueryRowContext(ctx, `INSERT INTO words (user_id, dictionary_form, reading, frequency, is_mined, created_at, updated_at)
		VALUES (?, ?, ?, 1, 0, ?, ?)
		ON CONFLICT(user_id, dictionary_form, reading) DO UPDATE SET
		  frequency = words.frequency + 1,
		  updated_at = excluded.updated_at
		RETURNING `+db.WordColumns,
		user, form, reading, now, now)
	w, err := db.ScanWord(row)
	if err != nil {
		return db.Word{}, fmt.Errorf("upsert word %s: %w", form, err)
	}
	return w, nil
}

// MarkMined flips is_mined for the given words of user and returns how many
// were flipped. Already mined words and ids that do not belong to user are
// ignored, so calling it twice is the same as calling it once.
func MarkMined(ctx context.Context, ex db.DBExecutor, user string, wordIDs []int64) (int, error) {
	ids := dedupe(wordIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, db.Now(), user)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := ex.ExecContext(ctx,
		`UPDATE words SET is_mined = 1, updated_at = ?
		 WHERE user_id = ? AND is_mined = 0 AND id IN (`+db.Placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("mark mined: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FrequencyRank yields the user's words by frequency descending, ties broken
// by dictionary form ascending. Rows are read lazily; stop ranging to release
// them early.
func FrequencyRank(ctx context.Context, ex db.DBExecutor, user string) iter.Seq2[db.Word, error] {
	return func(yield func(db.Word, error) bool) {
		rows, err := ex.QueryContext(ctx, `SELECT `+db.WordColumns+` FROM words
			WHERE user_id = ?
			ORDER BY frequency DESC, dictionary_form ASC, reading ASC, id ASC`, user)
		if err != nil {
			yield(db.Word{}, fmt.Errorf("rank words: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			w, err := db.ScanWord(rows)
			if !yield(w, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(db.Word{}, err)
		}
	}
}

// Get returns the user's word with the given id.
func Get(ctx context.Context, ex db.DBExecutor, user string, id int64) (db.Word, error) {
	row := ex.QueryRowContext(ctx, `SELECT `+db.WordColumns+` FROM words WHERE user_id = ? AND id = ?`, user, id)
	return scanOne(row, id)
}

// Lookup returns the user's word for (dictionaryForm, reading).
func Lookup(ctx context.Context, ex db.DBExecutor, user, dictionaryForm, reading string) (db.Word, error) {
	row := ex.QueryRowContext(ctx, `SELECT `+db.WordColumns+` FROM words
		WHERE user_id = ? AND dictionary_form = ? AND reading = ?`, user, dictionaryForm, reading)
	return scanOne(row, dictionaryForm+"/"+reading)
}

func scanOne(row *sql.Row, key any) (db.Word, error) {
	w, err := db.ScanWord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Word{}, &db.NotFoundError{Entity: "word", ID: key}
	}
	if err != nil {
		return db.Word{}, fmt.Errorf("lookup word: %w", err)
	}
	return w, nil
}

// Stats summarizes a user's ledger.
type Stats struct {
	Words       int
	Mined       int
	Occurrences int
}

// Unmined is the number of words not yet included in a batch.
func (s Stats) Unmined() int { return s.Words - s.Mined }

// UserStats returns ledger totals for user.
func UserStats(ctx context.Context, ex db.DBExecutor, user string) (Stats, error) {
	var s Stats
	err := ex.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(is_mined), 0), COALESCE(SUM(frequency), 0)
		FROM words WHERE user_id = ?`, user).Scan(&s.Words, &s.Mined, &s.Occurrences)
	if err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	return s, nil
}
