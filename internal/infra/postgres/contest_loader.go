package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle/internal/domain"
)

// ContestLoader loads a contest with its ordered questions and options from Postgres.
type ContestLoader struct {
	pool *pgxpool.Pool
}

func NewContestLoader(pool *pgxpool.Pool) *ContestLoader {
	return &ContestLoader{pool: pool}
}

func (l *ContestLoader) LoadContest(ctx context.Context, contestID string) (domain.Contest, error) {
	var contest domain.Contest
	var status string
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, start_time, status, show_results, open_to_all
		FROM contests WHERE id = $1`, contestID).
		Scan(&contest.ID, &contest.Title, &contest.StartTime, &status, &contest.ShowResults, &contest.OpenToAll)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	if err != nil {
		return domain.Contest{}, domain.Unavailable(fmt.Errorf("load contest: %w", err))
	}
	contest.Status = domain.ContestStatus(status)

	if contest.BatchIDs, err = l.batches(ctx, contestID); err != nil {
		return domain.Contest{}, err
	}
	if contest.Questions, err = l.questions(ctx, contestID); err != nil {
		return domain.Contest{}, err
	}
	return contest, nil
}

func (l *ContestLoader) batches(ctx context.Context, contestID string) ([]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT batch_id FROM contest_batches WHERE contest_id = $1 ORDER BY batch_id`, contestID)
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("load contest batches: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.Unavailable(fmt.Errorf("scan contest batch: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, domain.Unavailable(rows.Err())
}

// questions reads every question joined with its options; a question without options
// yields one row with NULL option columns.
func (l *ContestLoader) questions(ctx context.Context, contestID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.order_index, q.prompt, q.time_limit, q.score,
		       o.id, o.text, o.is_correct
		FROM questions q
		LEFT JOIN options o ON o.question_id = q.id
		WHERE q.contest_id = $1
		ORDER BY q.order_index, q.id, o.position, o.id`, contestID)
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("load questions: %w", err))
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		var (
			q          domain.Question
			optionID   *string
			optionText *string
			isCorrect  *bool
		)
		if err := rows.Scan(&q.ID, &q.OrderIndex, &q.Prompt, &q.TimeLimit, &q.Score, &optionID, &optionText, &isCorrect); err != nil {
			return nil, domain.Unavailable(fmt.Errorf("scan question: %w", err))
		}
		if n := len(questions); n == 0 || questions[n-1].ID != q.ID {
			q.ContestID = contestID
			q.Options = []domain.Option{}
			questions = append(questions, q)
		}
		if optionID == nil {
			continue
		}
		opt := domain.Option{ID: *optionID}
		if optionText != nil {
			opt.Text = *optionText
		}
		if isCorrect != nil {
			opt.IsCorrect = *isCorrect
		}
		last := &questions[len(questions)-1]
		last.Options = append(last.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable(fmt.Errorf("iterate questions: %w", err))
	}
	return questions, nil
}
