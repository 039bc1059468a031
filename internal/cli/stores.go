package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quiz-battle/internal/app"
	"quiz-battle/internal/config"
	"quiz-battle/internal/domain"
	"quiz-battle/internal/infra/memory"
	"quiz-battle/internal/infra/postgres"
	redisstore "quiz-battle/internal/infra/redis"
)

// stores bundles the adapters chosen from config: Postgres and Redis when configured,
// in-memory otherwise.
type stores struct {
	records  app.RecordStore
	contests app.ContestRepository
	cache    app.ContestCache
	ranking  app.RankingStore
	registry app.StreamRegistry
	closers  []func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	st := &stores{}

	var loader memory.ContestLoader
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		st.closers = append(st.closers, func() { db.Close() })
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		st.records = postgres.NewRecordStore(db)
		loader = postgres.NewContestLoader(pool)
	} else {
		mem := memory.NewRecordStore()
		seedDemo(mem, time.Now())
		logger.Warning("postgres not configured, using in-memory records with demo contest demo-1")
		st.records = mem
		loader = mem
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.closers = append(st.closers, func() { client.Close() })
		contests := redisstore.NewContestRepository(client, loader, cfg.CacheTTL())
		st.contests, st.cache = contests, contests
		st.ranking = redisstore.NewRankingStore(client, cfg.LeaderboardTTL())
		st.registry = redisstore.NewStreamRegistry(client, cfg.StreamTTL())
	} else {
		contests := memory.NewContestRepository(loader, cfg.CacheTTL())
		st.contests, st.cache = contests, contests
		st.ranking = memory.NewRankingStore()
		st.registry = memory.NewStreamRegistry()
	}
	return st, nil
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// seedDemo publishes a three question contest starting shortly after now.
func seedDemo(mem *memory.RecordStore, now time.Time) {
	mem.PutUser("demo-user-1", "Ada")
	mem.PutUser("demo-user-2", "Linus")
	mem.PutContest(domain.Contest{
		ID:          "demo-1",
		Title:       "Demo battle",
		StartTime:   now.Add(time.Minute).Truncate(time.Second),
		Status:      domain.StatusPublished,
		ShowResults: true,
		OpenToAll:   true,
		Questions: []domain.Question{
			{
				ID: "demo-q1", OrderIndex: 0, Prompt: "What is 2 + 2?", TimeLimit: 20, Score: 10,
				Options: []domain.Option{
					{ID: "demo-q1-a", Text: "3"},
					{ID: "demo-q1-b", Text: "4", IsCorrect: true},
					{ID: "demo-q1-c", Text: "5"},
				},
			},
			{
				ID: "demo-q2", OrderIndex: 1, Prompt: "Which of these are prime?", TimeLimit: 30, Score: 20,
				Options: []domain.Option{
					{ID: "demo-q2-a", Text: "2", IsCorrect: true},
					{ID: "demo-q2-b", Text: "4"},
					{ID: "demo-q2-c", Text: "7", IsCorrect: true},
				},
			},
			{
				ID: "demo-q3", OrderIndex: 2, Prompt: "Which protocol does HTTP/3 run on?", TimeLimit: 15, Score: 10,
				Options: []domain.Option{
					{ID: "demo-q3-a", Text: "TCP"},
					{ID: "demo-q3-b", Text: "QUIC", IsCorrect: true},
				},
			},
		},
	})
}
