package db

import (
	"database/sql"
	"fmt"
	"time"
)

// User is the opaque owner of words, sentences and batches.
type User struct {
	ID        string
	CreatedAt time.Time
}

// Word is one vocabulary entry of a user, keyed by (user, dictionary form, reading).
type Word struct {
	ID             int64
	UserID         string
	DictionaryForm string
	Reading        string
	Frequency      int
	IsMined        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Sentence is an example sentence submitted to exemplify one word.
// MiningBatchID is nil exactly while IsPending is true.
type Sentence struct {
	ID            int64
	UserID        string
	WordID        int64
	Text          string
	IsPending     bool
	MiningBatchID *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MiningBatch groups formerly pending sentences. Its membership is the set of
// sentences whose MiningBatchID points at it.
type MiningBatch struct {
	ID        int64
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Column lists matching the Scan* helpers below.
const (
	WordColumns     = `id, user_id, dictionary_form, reading, frequency, is_mined, created_at, updated_at`
	SentenceColumns = `id, user_id, word_id, sentence, is_pending, mining_batch_id, created_at, updated_at`
	BatchColumns    = `id, user_id, created_at, updated_at`
)

// ScanWord reads a row selected with WordColumns.
func ScanWord(s Scanner) (Word, error) {
	var w Word
	err := s.Scan(&w.ID, &w.UserID, &w.DictionaryForm, &w.Reading, &w.Frequency, &w.IsMined,
		timestamp{&w.CreatedAt}, timestamp{&w.UpdatedAt})
	return w, err
}

// ScanSentence reads a row selected with SentenceColumns.
func ScanSentence(s Scanner) (Sentence, error) {
	var st Sentence
	var batchID sql.NullInt64
	err := s.Scan(&st.ID, &st.UserID, &st.WordID, &st.Text, &st.IsPending, &batchID,
		timestamp{&st.CreatedAt}, timestamp{&st.UpdatedAt})
	if err != nil {
		return st, err
	}
	if batchID.Valid {
		id := batchID.Int64
		st.MiningBatchID = &id
	}
	return st, nil
}

// ScanBatch reads a row selected with BatchColumns.
func ScanBatch(s Scanner) (MiningBatch, error) {
	var b MiningBatch
	err := s.Scan(&b.ID, &b.UserID, timestamp{&b.CreatedAt}, timestamp{&b.UpdatedAt})
	return b, err
}

// timeLayout is how timestamps are written to TEXT columns.
const timeLayout = time.RFC3339Nano

// Now returns the current time formatted for storage.
func Now() string {
	return time.Now().UTC().Format(timeLayout)
}

// timestamp scans TEXT (or driver-converted) timestamps into a time.Time.
type timestamp struct{ t *time.Time }

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*ts.t = time.Time{}
		return nil
	case time.Time:
		*ts.t = v
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (ts timestamp) parse(s string) error {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
