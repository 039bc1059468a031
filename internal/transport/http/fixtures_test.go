package http

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
	"quiz-battle/internal/infra/memory"
)

var contestStart = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	server  *httptest.Server
	records *memory.RecordStore
	ranking *memory.RankingStore
	clock   *testClock
}

// newTestEnv serves the full router over in-memory stores with a 20ms poll interval.
func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	records := memory.NewRecordStore()
	records.PutContest(sampleContest(domain.StatusLive))
	records.PutUser("u1", "Alice")
	records.PutUser("u2", "Bob", "batch-b")

	ranking := memory.NewRankingStore()
	contests := memory.NewContestRepository(records, time.Minute)
	clock := &testClock{now: now}

	scheduler := app.NewScheduler(records, ranking, time.Second, 5*time.Minute).WithClock(clock.Now)
	service := app.NewContestService(records, contests, ranking).WithClock(clock.Now)
	streams := app.NewStreamController(contests, records, ranking, scheduler, memory.NewStreamRegistry(),
		app.StreamConfig{PollInterval: 20 * time.Millisecond}).WithClock(clock.Now)

	server := httptest.NewServer(NewRouter(service, streams))
	t.Cleanup(server.Close)
	return &testEnv{server: server, records: records, ranking: ranking, clock: clock}
}

// sampleContest has one 20 second question with results shown, so it ends at start+30s.
func sampleContest(status domain.ContestStatus) domain.Contest {
	return domain.Contest{
		ID:          "contest-1",
		Title:       "Friday battle",
		StartTime:   contestStart,
		Status:      status,
		ShowResults: true,
		OpenToAll:   true,
		Questions: []domain.Question{
			{
				ID:        "q1",
				Prompt:    "What is 2 + 2?",
				TimeLimit: 20,
				Score:     10,
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", IsCorrect: true},
					{ID: "o3", Text: "5"},
				},
			},
		},
	}
}
