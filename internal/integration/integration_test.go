package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
	"quiz-battle/internal/infra/memory"
	"quiz-battle/internal/infra/postgres"
	pgmigrations "quiz-battle/internal/infra/postgres/migrations"
	infraredis "quiz-battle/internal/infra/redis"
)

func TestContestEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	records := postgres.NewRecordStore(db)
	contests := infraredis.NewContestRepository(redisClient, postgres.NewContestLoader(pool), 5*time.Minute)
	ranking := infraredis.NewRankingStore(redisClient, time.Hour)
	service := app.NewContestService(records, contests, ranking)
	scheduler := app.NewScheduler(records, ranking, time.Second, 5*time.Minute)

	contest, err := contests.GetContest(ctx, "contest-1")
	if err != nil {
		t.Fatalf("get contest: %v", err)
	}
	if len(contest.Questions) != 2 || contest.Questions[0].ID != "q1" || len(contest.Questions[1].Options) != 3 {
		t.Fatalf("unexpected contest content %+v", contest.Questions)
	}

	mustExec(t, ctx, db, `UPDATE contests SET status = 'WAITING' WHERE id = 'contest-1'`)
	for _, user := range []string{"u1", "u2", "u3"} {
		eligible, err := service.CheckEligibility(ctx, "contest-1", user)
		if err != nil {
			t.Fatalf("eligibility %s: %v", user, err)
		}
		if err := service.Join(ctx, "contest-1", user, eligible); err != nil {
			t.Fatalf("join %s: %v", user, err)
		}
	}
	if err := service.Join(ctx, "contest-1", "u1", true); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	mustExec(t, ctx, db, `UPDATE contests SET status = 'LIVE' WHERE id = 'contest-1'`)
	if err := service.Join(ctx, "contest-1", "u1", true); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected join on a live contest to be refused, got %v", err)
	}

	if _, err := service.Submit(ctx, "contest-1", "u2", "q1", []string{"q1o2"}); err != nil {
		t.Fatalf("submit u2: %v", err)
	}
	if _, err := service.Submit(ctx, "contest-1", "u1", "q2", []string{"q2o1"}); err != nil {
		t.Fatalf("submit u1: %v", err)
	}
	if _, err := service.Submit(ctx, "contest-1", "u3", "q1", nil); err != nil {
		t.Fatalf("submit empty: %v", err)
	}
	if _, err := service.Submit(ctx, "contest-1", "u2", "q1", []string{"q1o1"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on resubmit, got %v", err)
	}

	board, err := service.Leaderboard(ctx, "contest-1", 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 3 || board[0].UserID != "u2" || board[0].Score != 10 || board[0].Name != "Bob" {
		t.Fatalf("expected bob leading with 10, got %+v", board)
	}
	if board[1].UserID != "u1" || board[1].Score != 5 {
		t.Fatalf("expected alice second with 5, got %+v", board)
	}

	subs, err := records.FindSubmissions(ctx, "contest-1", "q1")
	if err != nil || len(subs) != 2 {
		t.Fatalf("expected 2 submissions for q1, got %d (%v)", len(subs), err)
	}

	ended, err := records.ListEnded(ctx, time.Now())
	if err != nil || len(ended) != 1 || ended[0] != "contest-1" {
		t.Fatalf("expected contest-1 ended, got %v (%v)", ended, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := scheduler.Finalize(ctx, "contest-1")
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one finalize to proceed, got %d", winners)
	}

	results, err := records.ListResults(ctx, "contest-1")
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 3 || results[0].UserID != "u2" || results[0].Rank != 1 || results[2].Rank != 3 {
		t.Fatalf("unexpected results %+v", results)
	}
	top, _ := ranking.TopN(ctx, "contest-1", 0)
	if len(top) != 0 {
		t.Fatalf("expected ranking cleared after finalize, got %+v", top)
	}
	if status, _ := records.GetContestStatus(ctx, "contest-1"); status != domain.StatusFinished {
		t.Fatalf("expected FINISHED, got %s", status)
	}
}

func TestSchedulerPromotesByTime(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	now := time.Now().UTC()
	insertContest(t, ctx, db, "soon", now.Add(2*time.Minute), domain.StatusPublished)
	insertContest(t, ctx, db, "started", now.Add(-5*time.Second), domain.StatusWaiting)
	insertContest(t, ctx, db, "later", now.Add(time.Hour), domain.StatusPublished)
	mustExec(t, ctx, db, `INSERT INTO questions (id, contest_id, order_index, prompt, time_limit, score) VALUES ('started-q', 'started', 0, 'p', 60, 10)`)

	records := postgres.NewRecordStore(db)
	scheduler := app.NewScheduler(records, memory.NewRankingStore(), time.Second, 5*time.Minute)
	if err := scheduler.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	want := map[string]domain.ContestStatus{
		"contest-1": domain.StatusFinished,
		"soon":      domain.StatusWaiting,
		"started":   domain.StatusLive,
		"later":     domain.StatusPublished,
	}
	for id, status := range want {
		got, err := records.GetContestStatus(ctx, id)
		if err != nil || got != status {
			t.Fatalf("%s: expected %s, got %s (%v)", id, status, got, err)
		}
	}
}

// migrateAndSeed applies migrations and inserts contest-1, which started an hour ago.
// q1: 20s, 10 points, q1o2 correct. q2: 15s, 10 points, q2o1 and q2o3 correct.
func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mustExec(t, ctx, db, `INSERT INTO users (id, name) VALUES ('u1', 'Alice'), ('u2', 'Bob'), ('u3', 'Carol')`)
	insertContest(t, ctx, db, "contest-1", time.Now().Add(-time.Hour), domain.StatusLive)
	mustExec(t, ctx, db, `INSERT INTO questions (id, contest_id, order_index, prompt, time_limit, score) VALUES
		('q2', 'contest-1', 1, 'Pick the primes', 15, 10),
		('q1', 'contest-1', 0, 'What is 2 + 2?', 20, 10)`)
	mustExec(t, ctx, db, `INSERT INTO options (id, question_id, position, text, is_correct) VALUES
		('q1o1', 'q1', 0, '3', false), ('q1o2', 'q1', 1, '4', true),
		('q2o1', 'q2', 0, '2', true), ('q2o2', 'q2', 1, '4', false), ('q2o3', 'q2', 2, '7', true)`)
}

func insertContest(t *testing.T, ctx context.Context, db *bun.DB, id string, start time.Time, status domain.ContestStatus) {
	t.Helper()
	mustExec(t, ctx, db, `INSERT INTO contests (id, title, start_time, status, show_results, open_to_all) VALUES (?, ?, ?, ?, true, true)`,
		id, "Contest "+id, start, string(status))
}

func mustExec(t *testing.T, ctx context.Context, db *bun.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
