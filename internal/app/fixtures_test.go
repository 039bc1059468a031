package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
	"quiz-battle/internal/infra/memory"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	records   *memory.RecordStore
	ranking   *memory.RankingStore
	contests  *memory.ContestRepository
	registry  *memory.StreamRegistry
	clock     *fakeClock
	service   *app.ContestService
	scheduler *app.Scheduler
}

func newFixture(status domain.ContestStatus) *fixture {
	records := memory.NewRecordStore()
	records.PutContest(twoQuestionContest(status))
	records.PutUser("u1", "Alice")
	records.PutUser("u2", "Bob", "batch-b")
	records.PutUser("u3", "Carol")

	f := &fixture{
		records:  records,
		ranking:  memory.NewRankingStore(),
		registry: memory.NewStreamRegistry(),
		clock:    &fakeClock{now: t0},
	}
	f.contests = memory.NewContestRepository(records, time.Minute)
	f.service = app.NewContestService(records, f.contests, f.ranking).WithClock(f.clock.Now)
	f.scheduler = app.NewScheduler(records, f.ranking, time.Second, 5*time.Minute).WithClock(f.clock.Now)
	return f
}

func (f *fixture) streamController(poll time.Duration) *app.StreamController {
	return app.NewStreamController(f.contests, f.records, f.ranking, f.scheduler, f.registry,
		app.StreamConfig{PollInterval: poll}).WithClock(f.clock.Now)
}

// joinBeforeStart joins users while contest-1 is still WAITING, then restores its status.
func (f *fixture) joinBeforeStart(t *testing.T, users ...string) {
	t.Helper()
	ctx := context.Background()
	status, err := f.records.GetContestStatus(ctx, "contest-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	f.records.SetStatus("contest-1", domain.StatusWaiting)
	defer f.records.SetStatus("contest-1", status)
	for _, user := range users {
		if err := f.service.Join(ctx, "contest-1", user, true); err != nil {
			t.Fatalf("join %s: %v", user, err)
		}
	}
}

// twoQuestionContest starts at t0 with a 20s and a 15s question and results shown,
// so it ends at t0+55s.
func twoQuestionContest(status domain.ContestStatus) domain.Contest {
	return domain.Contest{
		ID:          "contest-1",
		Title:       "Friday battle",
		StartTime:   t0,
		Status:      status,
		ShowResults: true,
		OpenToAll:   true,
		Questions: []domain.Question{
			{
				ID: "q2", OrderIndex: 1, Prompt: "Pick the primes", TimeLimit: 15, Score: 10,
				Options: []domain.Option{
					{ID: "q2o1", Text: "2", IsCorrect: true},
					{ID: "q2o2", Text: "4"},
					{ID: "q2o3", Text: "7", IsCorrect: true},
				},
			},
			{
				ID: "q1", OrderIndex: 0, Prompt: "What is 2 + 2?", TimeLimit: 20, Score: 10,
				Options: []domain.Option{
					{ID: "q1o1", Text: "3"},
					{ID: "q1o2", Text: "4", IsCorrect: true},
				},
			},
		},
	}
}
