package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
)

const foreignKeyViolation = "23503"

// Open connects bun to Postgres through pgdriver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// RecordStore implements app.RecordStore on Postgres.
type RecordStore struct {
	writer
	db  *bun.DB
	now func() time.Time
}

func NewRecordStore(db *bun.DB) *RecordStore {
	return &RecordStore{writer: writer{db: db}, db: db, now: time.Now}
}

// writer holds the statements finalization runs, against either the pool or a transaction.
type writer struct {
	db bun.IDB
}

func (w writer) UpdateContestStatusIf(ctx context.Context, contestID string, unless, to domain.ContestStatus) (int64, error) {
	res, err := w.db.NewUpdate().
		Model((*contestRow)(nil)).
		Set("status = ?", string(to)).
		Where("id = ?", contestID).
		Where("status <> ?", string(unless)).
		Exec(ctx)
	if err != nil {
		return 0, domain.Unavailable(err)
	}
	return rowsAffected(res)
}

func (w writer) UpsertResult(ctx context.Context, result domain.Result) error {
	row := &resultRow{
		ContestID:  result.ContestID,
		UserID:     result.UserID,
		FinalScore: result.FinalScore,
		Rank:       result.Rank,
	}
	_, err := w.db.NewInsert().
		Model(row).
		On("CONFLICT (contest_id, user_id) DO UPDATE").
		Set("final_score = EXCLUDED.final_score").
		Set("rank = EXCLUDED.rank").
		Exec(ctx)
	return domain.Unavailable(err)
}

func (s *RecordStore) InTx(ctx context.Context, fn func(tx app.FinalizeTx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(writer{db: tx})
	})
}

func (s *RecordStore) GetContestStatus(ctx context.Context, contestID string) (domain.ContestStatus, error) {
	var status string
	err := s.db.NewSelect().
		Model((*contestRow)(nil)).
		Column("status").
		Where("id = ?", contestID).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrContestNotFound
	}
	if err != nil {
		return "", domain.Unavailable(err)
	}
	return domain.ContestStatus(status), nil
}

func (s *RecordStore) AddParticipant(ctx context.Context, contestID, userID string) error {
	row := &participantRow{ContestID: contestID, UserID: userID, JoinedAt: s.now()}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (contest_id, user_id) DO NOTHING").
		Exec(ctx)
	if isForeignKeyViolation(err) {
		return domain.ErrContestNotFound
	}
	return domain.Unavailable(err)
}

func (s *RecordStore) CreateSubmissionIfAbsent(ctx context.Context, submission domain.Submission) error {
	optionIDs := submission.OptionIDs
	if optionIDs == nil {
		optionIDs = []string{}
	}
	row := &submissionRow{
		UserID:      submission.UserID,
		QuestionID:  submission.QuestionID,
		ContestID:   submission.ContestID,
		OptionIDs:   optionIDs,
		Score:       submission.Score,
		SubmittedAt: submission.SubmittedAt,
	}
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id, question_id) DO NOTHING").
		Exec(ctx)
	if isForeignKeyViolation(err) {
		return domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Unavailable(err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDuplicateSubmission
	}
	return nil
}

func (s *RecordStore) FindSubmissions(ctx context.Context, contestID, questionID string) ([]domain.Submission, error) {
	var rows []submissionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("contest_id = ?", contestID).
		Where("question_id = ?", questionID).
		Order("submitted_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	out := make([]domain.Submission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *RecordStore) ListResults(ctx context.Context, contestID string) ([]domain.Result, error) {
	var rows []resultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("contest_id = ?", contestID).
		Order("rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	out := make([]domain.Result, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *RecordStore) ResolveUserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var users []userRow
	err := s.db.NewSelect().
		Model(&users).
		Where("id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func (s *RecordStore) UserBatchIDs(ctx context.Context, userID string) ([]string, error) {
	var batchIDs []string
	err := s.db.NewSelect().
		Table("user_batches").
		Column("batch_id").
		Where("user_id = ?", userID).
		Order("batch_id").
		Scan(ctx, &batchIDs)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return batchIDs, nil
}

func (s *RecordStore) PromoteWaiting(ctx context.Context, startBefore time.Time) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*contestRow)(nil)).
		Set("status = ?", string(domain.StatusWaiting)).
		Where("status = ?", string(domain.StatusPublished)).
		Where("start_time <= ?", startBefore).
		Exec(ctx)
	if err != nil {
		return 0, domain.Unavailable(err)
	}
	return rowsAffected(res)
}

// PromoteLive moves started WAITING contests to LIVE. Contests already past their end
// time are left for finalization.
func (s *RecordStore) PromoteLive(ctx context.Context, now time.Time) (int64, error) {
	running := s.db.NewSelect().
		Table("contest_windows").
		Column("id").
		Where("end_time > ?", now)
	res, err := s.db.NewUpdate().
		Model((*contestRow)(nil)).
		Set("status = ?", string(domain.StatusLive)).
		Where("status = ?", string(domain.StatusWaiting)).
		Where("start_time <= ?", now).
		Where("id IN (?)", running).
		Exec(ctx)
	if err != nil {
		return 0, domain.Unavailable(err)
	}
	return rowsAffected(res)
}

func (s *RecordStore) ListEnded(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Table("contest_windows").
		Column("id").
		Where("status IN (?)", bun.In([]string{string(domain.StatusWaiting), string(domain.StatusLive)})).
		Where("end_time <= ?", now).
		Order("id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return ids, nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Unavailable(fmt.Errorf("rows affected: %w", err))
	}
	return n, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == foreignKeyViolation
}
