// Package scheduler forms mining batches on a cron schedule for every user
// with pending sentences.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/mining"
)

// Batcher forms a batch from a user's pending sentences.
// *ingest.Ingester implements it.
type Batcher interface {
	RequestBatch(ctx context.Context, user string) (db.MiningBatch, error)
}

// Result summarizes one scheduled run.
type Result struct {
	Users   int
	Batches []db.MiningBatch
}

// Scheduler manages cron-based batch formation with timezone support.
type Scheduler struct {
	cron    *cron.Cron
	conn    db.DBExecutor
	batcher Batcher
	logger  *slog.Logger

	// Concurrency bounds how many users are batched at once.
	Concurrency int

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// NewScheduler creates a scheduler for the given timezone. logger may be nil.
func NewScheduler(conn db.DBExecutor, batcher Batcher, timezone string, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		cron:        cron.New(cron.WithLocation(loc)),
		conn:        conn,
		batcher:     batcher,
		logger:      logger,
		Concurrency: 4,
	}, nil
}

// Schedule runs RunOnce on the standard five-field cron spec, replacing any
// previous schedule.
func (s *Scheduler) Schedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("scheduled batching failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.entryID = entryID
	return nil
}

// Next returns the next scheduled run, or the zero time when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// RunOnce forms one batch for each user that has pending sentences. A user
// whose queue empties before its turn is skipped. Failures for one user do
// not stop the others; they are joined into the returned error.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	users, err := db.UsersWithPending(ctx, s.conn)
	if err != nil {
		return Result{}, err
	}

	var (
		mu      sync.Mutex
		batches []db.MiningBatch
		errs    []error
	)
	var g errgroup.Group
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for _, user := range users {
		g.Go(func() error {
			batch, err := s.batcher.RequestBatch(ctx, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, mining.ErrEmptyBatch):
				s.logger.Debug("queue emptied before batching", "user", user)
			case err != nil:
				errs = append(errs, fmt.Errorf("user %s: %w", user, err))
			default:
				batches = append(batches, batch)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("scheduled batching finished", "users", len(users), "batches", len(batches), "failures", len(errs))
	return Result{Users: len(users), Batches: batches}, errors.Join(errs...)
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	done := s.cron.Stop()
	s.mu.Unlock()
	<-done.Done()
}
