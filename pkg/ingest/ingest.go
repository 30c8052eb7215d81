// Package ingest coordinates the submission and batching workflows: it runs
// tokenization, the vocabulary ledger, the intake queue and the batch
// compositor under one per-user lock and one transaction per operation.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/intake"
	"github.com/japaniel/sentencebase/pkg/mining"
	"github.com/japaniel/sentencebase/pkg/tokenize"
	"github.com/japaniel/sentencebase/pkg/vocab"
)

// Tokenizer is the morphological analysis capability the pipeline needs.
// *tokenize.Analyzer implements it.
type Tokenizer interface {
	Tokenize(text string) ([]tokenize.Token, error)
}

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Ingester runs the sentence pipeline against one database.
type Ingester struct {
	DB       *sql.DB
	Analyzer Tokenizer
	Queue    *intake.Queue
	// Binder picks the word a submitted sentence exemplifies. nil means HintOrFirst.
	Binder Binder
	// Logger receives pipeline events. nil means no logging.
	Logger *slog.Logger

	// BatchSize and Workers tune SubmitDocument.
	BatchSize int
	Workers   int
	// OnProgress is called by SubmitDocument with the number of applied and total sentences.
	OnProgress func(current, total int)
	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface

	locks userLocks
}

// NewIngester creates a new Ingester.
func NewIngester(conn *sql.DB, analyzer Tokenizer, queue *intake.Queue) *Ingester {
	return &Ingester{
		DB:        conn,
		Analyzer:  analyzer,
		Queue:     queue,
		BatchSize: 50,
		Workers:   4,
	}
}

var discardLogger = slog.New(slog.DiscardHandler)

func (ig *Ingester) log() *slog.Logger {
	if ig.Logger == nil {
		return discardLogger
	}
	return ig.Logger
}

func (ig *Ingester) binder() Binder {
	if ig.Binder == nil {
		return HintOrFirst
	}
	return ig.Binder
}

// Submit tokenizes text, records every token in the user's ledger and queues
// the sentence for the bound word, all in one transaction.
//
// Tokenization and binding failures happen before any write. When the queue
// refuses the sentence the ledger increments are still committed and the
// *intake.AdmissionError is returned: frequencies count every attempt.
func (ig *Ingester) Submit(ctx context.Context, user, text string, hint *WordHint) (db.Sentence, error) {
	tokens, err := ig.Analyzer.Tokenize(text)
	if err != nil {
		return db.Sentence{}, err
	}
	target, err := ig.binder().Bind(tokens, hint)
	if err != nil {
		return db.Sentence{}, err
	}

	unlock := ig.locks.lock(user)
	defer unlock()

	var sentence db.Sentence
	var refused error
	err = db.WithTx(ctx, ig.DB, func(tx *sql.Tx) error {
		if err := db.RequireUser(ctx, tx, user); err != nil {
			return err
		}
		var err error
		sentence, refused, err = ig.apply(ctx, tx, user, text, tokens, target)
		return err
	})
	if err != nil {
		ig.log().Error("submit failed", "user", user, "error", err)
		return db.Sentence{}, err
	}
	if refused != nil {
		ig.log().Warn("sentence refused", "user", user, "tokens", len(tokens), "error", refused)
		return db.Sentence{}, refused
	}
	ig.log().Info("sentence queued", "user", user, "sentence_id", sentence.ID, "word_id", sentence.WordID, "tokens", len(tokens))
	return sentence, nil
}

// apply writes one tokenized sentence. An admission refusal is returned as
// refused, leaving err nil so the caller commits the ledger updates.
func (ig *Ingester) apply(ctx context.Context, tx db.DBExecutor, user, text string, tokens []tokenize.Token, target int) (sentence db.Sentence, refused, err error) {
	var word db.Word
	for i, t := range tokens {
		w, err := vocab.UpsertOccurrence(ctx, tx, user, t.DictionaryForm, t.Reading)
		if err != nil {
			return db.Sentence{}, nil, fmt.Errorf("failed to persist word %s: %w", t.DictionaryForm, err)
		}
		if i == target {
			word = w
		}
	}

	sentence, err = ig.Queue.Enqueue(ctx, tx, user, word.ID, text)
	var admissionErr *intake.AdmissionError
	if errors.As(err, &admissionErr) {
		return db.Sentence{}, err, nil
	}
	if err != nil {
		return db.Sentence{}, nil, err
	}
	return sentence, nil, nil
}

// RequestBatch turns all of the user's pending sentences into a new batch.
// Concurrent requests for one user are serialized; the later one finds
// nothing pending and fails with mining.ErrEmptyBatch.
func (ig *Ingester) RequestBatch(ctx context.Context, user string) (db.MiningBatch, error) {
	return ig.form(ctx, user, func(tx *sql.Tx) (db.MiningBatch, error) {
		return mining.FormBatch(ctx, tx, user)
	})
}

// RequestSelectedBatch batches only the given pending sentences.
func (ig *Ingester) RequestSelectedBatch(ctx context.Context, user string, sentenceIDs []int64) (db.MiningBatch, error) {
	return ig.form(ctx, user, func(tx *sql.Tx) (db.MiningBatch, error) {
		return mining.FormSelectedBatch(ctx, tx, user, sentenceIDs)
	})
}

func (ig *Ingester) form(ctx context.Context, user string, compose func(tx *sql.Tx) (db.MiningBatch, error)) (db.MiningBatch, error) {
	unlock := ig.locks.lock(user)
	defer unlock()

	var batch db.MiningBatch
	err := db.WithTx(ctx, ig.DB, func(tx *sql.Tx) error {
		if err := db.RequireUser(ctx, tx, user); err != nil {
			return err
		}
		var err error
		batch, err = compose(tx)
		return err
	})
	if err != nil {
		if errors.Is(err, mining.ErrEmptyBatch) {
			ig.log().Debug("nothing to batch", "user", user)
		} else {
			ig.log().Error("batch failed", "user", user, "error", err)
		}
		return db.MiningBatch{}, err
	}
	ig.log().Info("batch formed", "user", user, "batch_id", batch.ID)
	return batch, nil
}

// Withdraw removes one of the user's pending sentences.
func (ig *Ingester) Withdraw(ctx context.Context, user string, sentenceID int64) error {
	unlock := ig.locks.lock(user)
	defer unlock()

	return db.WithTx(ctx, ig.DB, func(tx *sql.Tx) error {
		if err := db.RequireUser(ctx, tx, user); err != nil {
			return err
		}
		return intake.Withdraw(ctx, tx, user, sentenceID)
	})
}

// readOnce runs a read and retries it a single time on a transaction conflict.
// Only side-effect-free operations go through here.
func readOnce[T any](fn func() (T, error)) (T, error) {
	v, err := fn()
	if errors.Is(db.Classify(err), db.ErrConflict) {
		v, err = fn()
	}
	return v, db.Classify(err)
}

// CountPending returns the number of the user's pending sentences.
func (ig *Ingester) CountPending(ctx context.Context, user string) (int, error) {
	return readOnce(func() (int, error) {
		if err := db.RequireUser(ctx, ig.DB, user); err != nil {
			return 0, err
		}
		return intake.CountPending(ctx, ig.DB, user)
	})
}

// PendingSnapshot returns the user's pending sentences in creation order.
func (ig *Ingester) PendingSnapshot(ctx context.Context, user string) ([]db.Sentence, error) {
	return readOnce(func() ([]db.Sentence, error) {
		if err := db.RequireUser(ctx, ig.DB, user); err != nil {
			return nil, err
		}
		return intake.PendingSnapshot(ctx, ig.DB, user)
	})
}

// BatchView is a batch with its entries.
type BatchView struct {
	Batch   db.MiningBatch
	Entries []mining.Entry
}

// Batch returns one of the user's batches.
func (ig *Ingester) Batch(ctx context.Context, user string, batchID int64) (BatchView, error) {
	return readOnce(func() (BatchView, error) {
		b, entries, err := mining.Get(ctx, ig.DB, user, batchID)
		return BatchView{Batch: b, Entries: entries}, err
	})
}

// Batches lists the user's batches, newest first.
func (ig *Ingester) Batches(ctx context.Context, user string) ([]db.MiningBatch, error) {
	return readOnce(func() ([]db.MiningBatch, error) {
		if err := db.RequireUser(ctx, ig.DB, user); err != nil {
			return nil, err
		}
		return mining.List(ctx, ig.DB, user)
	})
}

// Stats returns the user's ledger totals.
func (ig *Ingester) Stats(ctx context.Context, user string) (vocab.Stats, error) {
	return readOnce(func() (vocab.Stats, error) {
		if err := db.RequireUser(ctx, ig.DB, user); err != nil {
			return vocab.Stats{}, err
		}
		return vocab.UserStats(ctx, ig.DB, user)
	})
}

// Vocabulary yields the user's words by descending frequency.
func (ig *Ingester) Vocabulary(ctx context.Context, user string) iter.Seq2[db.Word, error] {
	return vocab.FrequencyRank(ctx, ig.DB, user)
}
