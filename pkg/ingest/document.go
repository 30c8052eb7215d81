package ingest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/tokenize"
)

// Report summarizes a SubmitDocument run.
type Report struct {
	// Admitted sentences were queued as pending.
	Admitted int
	// Refused sentences were recorded in the ledger but not queued.
	Refused int
	// Skipped sentences failed tokenization or had no word to bind.
	Skipped int
	// Occurrences is the number of ledger increments applied.
	Occurrences int
}

// analyzedSentence holds the result of tokenizing a sentence before it is written.
type analyzedSentence struct {
	Index  int
	Text   string
	Tokens []tokenize.Token
	Target int
	Skip   bool
	Err    error
}

// SubmitDocument submits many sentences for one user. Sentences are tokenized
// concurrently and applied in input order through a BatchWriter, so each
// transaction carries several sentences. Each sentence binds to its first
// token. A sentence refused by the queue still counts in the ledger.
func (ig *Ingester) SubmitDocument(ctx context.Context, user string, sentences []string) (Report, error) {
	if err := db.RequireUser(ctx, ig.DB, user); err != nil {
		return Report{}, err
	}
	total := len(sentences)
	if total == 0 {
		return Report{}, nil
	}
	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	batchSize := ig.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}
	resultCh := make(chan analyzedSentence, workers*2)
	doneCh := make(chan error, 1)

	// report is written by the consumer (Skipped) and by the batch committer
	// (the rest). Both finish before it is read.
	var report Report
	var skipped int

	bw := NewBatchWriter(ig.DB, batchSize, 100*time.Millisecond)
	bw.Locker = ig.locks.locker(user)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wp.Start(ctx)

	go func() {
		doneCh <- ig.consume(ctx, cancel, user, total, resultCh, bw, &report, &skipped)
	}()

	var submitErr error
Loop:
	for i, text := range sentences {
		idx, text := i, text
		job := func(ctx context.Context) error {
			res := ig.analyze(idx, text)
			select {
			case resultCh <- res:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrPoolClosed) {
				break Loop
			}
			submitErr = err
			cancel()
			break Loop
		}
	}

	// Workers are done once Close returns, so nothing sends on resultCh after this.
	wp.Close()
	close(resultCh)

	err := <-doneCh
	if submitErr != nil {
		err = submitErr
	}
	if cerr := bw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		ig.log().Error("document ingest failed", "user", user, "sentences", total, "error", err)
		return Report{}, err
	}
	report.Skipped = skipped
	ig.log().Info("document ingested", "user", user,
		"admitted", report.Admitted, "refused", report.Refused,
		"skipped", report.Skipped, "occurrences", report.Occurrences)
	return report, nil
}

// analyze performs the CPU-heavy tokenization and binding of one sentence.
func (ig *Ingester) analyze(index int, text string) analyzedSentence {
	res := analyzedSentence{Index: index, Text: text}
	tokens, err := ig.Analyzer.Tokenize(text)
	var tokErr *tokenize.TokenizationError
	if errors.As(err, &tokErr) {
		res.Skip = true
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}
	target, err := ig.binder().Bind(tokens, nil)
	if errors.Is(err, ErrNoWord) {
		res.Skip = true
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Tokens = tokens
	res.Target = target
	return res
}

// consume reorders analyzed sentences by index and hands them to the batch
// writer in input order.
func (ig *Ingester) consume(ctx context.Context, cancel context.CancelFunc, user string, total int,
	resultCh <-chan analyzedSentence, bw *BatchWriter, report *Report, skipped *int) error {
	buffer := make(map[int]analyzedSentence)
	nextIdx := 0
	for res := range resultCh {
		if res.Err != nil {
			cancel()
			return res.Err
		}
		buffer[res.Index] = res

		for {
			item, ok := buffer[nextIdx]
			if !ok {
				break
			}
			delete(buffer, nextIdx)
			nextIdx++

			if item.Skip {
				*skipped++
			} else if err := bw.Submit(ig.writeSentence(user, item, report)); err != nil {
				cancel()
				return err
			}
			if ig.OnProgress != nil && (nextIdx%bw.cap == 0 || nextIdx == total) {
				ig.OnProgress(nextIdx, total)
			}
		}
	}
	if nextIdx < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}
	return nil
}

// writeSentence returns the write applied by the batch committer for one sentence.
func (ig *Ingester) writeSentence(user string, item analyzedSentence, report *Report) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, refused, err := ig.apply(ctx, tx, user, item.Text, item.Tokens, item.Target)
		if err != nil {
			return err
		}
		report.Occurrences += len(item.Tokens)
		if refused != nil {
			report.Refused++
		} else {
			report.Admitted++
		}
		return nil
	}
}
