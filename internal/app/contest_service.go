package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"

	"quiz-battle/internal/domain"
)

// AnonymousName is shown when a display name cannot be resolved.
const AnonymousName = "Anonymous"

// ErrScoreNotApplied means the submission is durable but its score never reached the ranking store.
var ErrScoreNotApplied = errors.New("submission recorded but leaderboard not updated")

// FinalizeTx is the slice of the record store that finalization runs inside one transaction.
type FinalizeTx interface {
	// UpdateContestStatusIf sets status to `to` where the current status differs from `unless`
	// and reports affected rows. It is the compare-and-swap gate of finalization.
	UpdateContestStatusIf(ctx context.Context, contestID string, unless, to domain.ContestStatus) (int64, error)
	UpsertResult(ctx context.Context, result domain.Result) error
}

// RecordStore is the durable store for contests, participants, submissions and results.
type RecordStore interface {
	FinalizeTx

	GetContestStatus(ctx context.Context, contestID string) (domain.ContestStatus, error)
	AddParticipant(ctx context.Context, contestID, userID string) error
	// CreateSubmissionIfAbsent returns domain.ErrDuplicateSubmission when (user, question) already answered.
	CreateSubmissionIfAbsent(ctx context.Context, submission domain.Submission) error
	FindSubmissions(ctx context.Context, contestID, questionID string) ([]domain.Submission, error)
	ListResults(ctx context.Context, contestID string) ([]domain.Result, error)
	ResolveUserNames(ctx context.Context, userIDs []string) (map[string]string, error)
	UserBatchIDs(ctx context.Context, userID string) ([]string, error)

	PromoteWaiting(ctx context.Context, startBefore time.Time) (int64, error)
	PromoteLive(ctx context.Context, now time.Time) (int64, error)
	ListEnded(ctx context.Context, now time.Time) ([]string, error)

	InTx(ctx context.Context, fn func(tx FinalizeTx) error) error
}

// ContestRepository loads contest content (questions and options), usually through a cache.
// The status it returns may be stale; use RecordStore.GetContestStatus for decisions.
type ContestRepository interface {
	GetContest(ctx context.Context, contestID string) (domain.Contest, error)
}

// RankingStore is the ephemeral per-contest ranked set. Every mutation is a single atomic operation.
type RankingStore interface {
	Upsert(ctx context.Context, contestID, userID string) error
	Increment(ctx context.Context, contestID, userID string, delta int) error
	// TopN returns entries by descending score, ties in join order. n <= 0 returns every entry.
	TopN(ctx context.Context, contestID string, n int) ([]domain.RankedEntry, error)
	Clear(ctx context.Context, contestID string) error
}

// ContestService contains the join, submit and leaderboard use cases.
type ContestService struct {
	records  RecordStore
	contests ContestRepository
	ranking  RankingStore
	now      func() time.Time

	incrementAttempts int
	incrementBackoff  time.Duration
}

func NewContestService(records RecordStore, contests ContestRepository, ranking RankingStore) *ContestService {
	return &ContestService{
		records:           records,
		contests:          contests,
		ranking:           ranking,
		now:               time.Now,
		incrementAttempts: 3,
		incrementBackoff:  50 * time.Millisecond,
	}
}

// WithClock replaces the time source; used by tests.
func (s *ContestService) WithClock(now func() time.Time) *ContestService {
	s.now = now
	return s
}

// CheckEligibility decides whether a user may join from the contest's batch restrictions.
func (s *ContestService) CheckEligibility(ctx context.Context, contestID, userID string) (bool, error) {
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return false, err
	}
	if contest.OpenToAll {
		return true, nil
	}
	batches, err := s.records.UserBatchIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	return contest.Admits(batches), nil
}

// Join registers a participant and seeds their leaderboard entry at zero. Re-joining is a no-op.
func (s *ContestService) Join(ctx context.Context, contestID, userID string, eligible bool) error {
	status, err := s.records.GetContestStatus(ctx, contestID)
	if err != nil {
		return err
	}
	if !status.Joinable() {
		return withStatus(domain.ErrContestNotJoinable, status)
	}
	if !eligible {
		return domain.ErrUserIneligible
	}

	if err := s.records.AddParticipant(ctx, contestID, userID); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	if err := s.ranking.Upsert(ctx, contestID, userID); err != nil {
		return fmt.Errorf("seed leaderboard entry: %w", err)
	}
	return nil
}

// Submit grades and records one answer. The submission row is the write-once gate;
// the ranking increment follows it immediately.
func (s *ContestService) Submit(ctx context.Context, contestID, userID, questionID string, optionIDs []string) (domain.Submission, error) {
	submission := domain.Submission{
		ContestID:   contestID,
		UserID:      userID,
		QuestionID:  questionID,
		OptionIDs:   dedupe(optionIDs),
		SubmittedAt: s.now(),
	}

	if len(submission.OptionIDs) == 0 {
		if err := s.records.CreateSubmissionIfAbsent(ctx, submission); err != nil {
			return domain.Submission{}, err
		}
		return submission, nil
	}

	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Submission{}, err
	}
	question, ok := contest.Question(questionID)
	if !ok {
		return domain.Submission{}, domain.ErrQuestionNotFound
	}
	submission.Score = Grade(question, submission.OptionIDs)

	if err := s.records.CreateSubmissionIfAbsent(ctx, submission); err != nil {
		return domain.Submission{}, err
	}
	if err := s.applyScore(ctx, contestID, userID, submission.Score); err != nil {
		logger.Errorf("contest %s: user %s question %s scored %d but leaderboard update failed: %v",
			contestID, userID, questionID, submission.Score, err)
		return submission, fmt.Errorf("%w: %v", ErrScoreNotApplied, err)
	}
	return submission, nil
}

func (s *ContestService) applyScore(ctx context.Context, contestID, userID string, delta int) error {
	var err error
	for attempt := 1; attempt <= s.incrementAttempts; attempt++ {
		if err = s.ranking.Increment(ctx, contestID, userID, delta); err == nil {
			return nil
		}
		if attempt == s.incrementAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.incrementBackoff):
		}
	}
	return err
}

// Leaderboard returns the live ranking with display names. limit <= 0 means the whole board.
func (s *ContestService) Leaderboard(ctx context.Context, contestID string, limit int) ([]domain.LeaderboardEntry, error) {
	if _, err := s.records.GetContestStatus(ctx, contestID); err != nil {
		return nil, err
	}
	return liveLeaderboard(ctx, s.ranking, s.records, contestID, limit)
}

// Results returns the durable final standings of a finished contest.
func (s *ContestService) Results(ctx context.Context, contestID string) ([]domain.LeaderboardEntry, error) {
	if _, err := s.records.GetContestStatus(ctx, contestID); err != nil {
		return nil, err
	}
	results, err := s.records.ListResults(ctx, contestID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(results))
	for _, r := range results {
		userIDs = append(userIDs, r.UserID)
	}
	names := resolveNames(ctx, s.records, userIDs)

	entries := make([]domain.LeaderboardEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: r.UserID,
			Name:   names[r.UserID],
			Score:  r.FinalScore,
			Rank:   r.Rank,
		})
	}
	return entries, nil
}

func liveLeaderboard(ctx context.Context, ranking RankingStore, records RecordStore, contestID string, limit int) ([]domain.LeaderboardEntry, error) {
	ranked, err := ranking.TopN(ctx, contestID, limit)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(ranked))
	for _, e := range ranked {
		userIDs = append(userIDs, e.UserID)
	}
	names := resolveNames(ctx, records, userIDs)

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, e := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: e.UserID,
			Name:   names[e.UserID],
			Score:  e.Score,
			Rank:   i + 1,
		})
	}
	return entries, nil
}

// resolveNames never fails: unresolved users get AnonymousName.
func resolveNames(ctx context.Context, records RecordStore, userIDs []string) map[string]string {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) > 0 {
		resolved, err := records.ResolveUserNames(ctx, userIDs)
		if err != nil {
			logger.Warningf("resolve %d user names: %v", len(userIDs), err)
		}
		for id, name := range resolved {
			names[id] = name
		}
	}
	for _, id := range userIDs {
		if names[id] == "" {
			names[id] = AnonymousName
		}
	}
	return names
}

func withStatus(err error, status domain.ContestStatus) error {
	return fmt.Errorf("%w (status %s)", err, status)
}
