package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"

	"quiz-battle/internal/domain"
)

// Finalizer freezes a contest leaderboard into durable results exactly once.
type Finalizer interface {
	Finalize(ctx context.Context, contestID string) (bool, error)
}

// ContestCache drops cached contest content that is no longer served.
type ContestCache interface {
	Invalidate(ctx context.Context, contestID string) error
}

// Scheduler advances contest status by time and finalizes contests whose questions are exhausted.
type Scheduler struct {
	records  RecordStore
	ranking  RankingStore
	cache    ContestCache
	interval time.Duration
	lead     time.Duration
	now      func() time.Time
}

func NewScheduler(records RecordStore, ranking RankingStore, interval, lead time.Duration) *Scheduler {
	return &Scheduler{
		records:  records,
		ranking:  ranking,
		interval: interval,
		lead:     lead,
		now:      time.Now,
	}
}

// WithCache evicts each contest's cached content once it is finalized.
func (s *Scheduler) WithCache(cache ContestCache) *Scheduler {
	s.cache = cache
	return s
}

// WithClock replaces the time source; used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Infof("lifecycle scheduler started, interval %s", s.interval)

	if err := s.Sweep(ctx); err != nil {
		logger.Errorf("lifecycle sweep failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("lifecycle scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logger.Errorf("lifecycle sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one pass: PUBLISHED -> WAITING within the lead window, WAITING -> LIVE
// once started, and finalize for every contest past its end time.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.now()
	var errs []error

	if n, err := s.records.PromoteWaiting(ctx, now.Add(s.lead)); err != nil {
		errs = append(errs, fmt.Errorf("promote to waiting: %w", err))
	} else if n > 0 {
		logger.Infof("lifecycle: %d contest(s) now WAITING", n)
	}

	if n, err := s.records.PromoteLive(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("promote to live: %w", err))
	} else if n > 0 {
		logger.Infof("lifecycle: %d contest(s) now LIVE", n)
	}

	ended, err := s.records.ListEnded(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("list ended contests: %w", err))
	}
	for _, contestID := range ended {
		if _, err := s.Finalize(ctx, contestID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Finalize marks the contest FINISHED, snapshots the ranking store into results and clears it.
// The conditional status update is the only gate: when it affects no rows another caller already
// finalized the contest and Finalize reports false without touching anything. The snapshot is
// read only after the gate passes.
func (s *Scheduler) Finalize(ctx context.Context, contestID string) (bool, error) {
	var snapshot []domain.RankedEntry
	finalized := false
	err := s.records.InTx(ctx, func(tx FinalizeTx) error {
		rows, err := tx.UpdateContestStatusIf(ctx, contestID, domain.StatusFinished, domain.StatusFinished)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		snapshot, err = s.ranking.TopN(ctx, contestID, 0)
		if err != nil {
			return fmt.Errorf("snapshot leaderboard: %w", err)
		}
		for i, entry := range snapshot {
			result := domain.Result{
				ContestID:  contestID,
				UserID:     entry.UserID,
				FinalScore: entry.Score,
				Rank:       i + 1,
			}
			if err := tx.UpsertResult(ctx, result); err != nil {
				return err
			}
		}
		finalized = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("finalize %s: %w", contestID, err)
	}
	if !finalized {
		return false, nil
	}

	// Results are durable at this point; a failed clear only leaks the ephemeral key.
	if err := s.ranking.Clear(ctx, contestID); err != nil {
		logger.Warningf("finalize %s: clear leaderboard: %v", contestID, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, contestID); err != nil {
			logger.Warningf("finalize %s: evict cached content: %v", contestID, err)
		}
	}
	logger.Infof("contest %s finalized with %d result(s)", contestID, len(snapshot))
	return true, nil
}
