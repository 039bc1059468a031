package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-battle/internal/domain"
)

type contestRow struct {
	bun.BaseModel `bun:"table:contests"`

	ID          string    `bun:"id,pk"`
	Title       string    `bun:"title"`
	StartTime   time.Time `bun:"start_time"`
	Status      string    `bun:"status"`
	ShowResults bool      `bun:"show_results"`
	OpenToAll   bool      `bun:"open_to_all"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants"`

	ContestID string    `bun:"contest_id,pk"`
	UserID    string    `bun:"user_id,pk"`
	JoinedAt  time.Time `bun:"joined_at"`
}

// submissionRow stores the selected option ids as a jsonb array in the answer column.
type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	UserID      string    `bun:"user_id,pk"`
	QuestionID  string    `bun:"question_id,pk"`
	ContestID   string    `bun:"contest_id"`
	OptionIDs   []string  `bun:"answer,type:jsonb"`
	Score       int       `bun:"score"`
	SubmittedAt time.Time `bun:"submitted_at"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:results"`

	ContestID  string `bun:"contest_id,pk"`
	UserID     string `bun:"user_id,pk"`
	FinalScore int    `bun:"final_score"`
	Rank       int    `bun:"rank"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

func (r submissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ContestID:   r.ContestID,
		UserID:      r.UserID,
		QuestionID:  r.QuestionID,
		OptionIDs:   r.OptionIDs,
		Score:       r.Score,
		SubmittedAt: r.SubmittedAt,
	}
}

func (r resultRow) toDomain() domain.Result {
	return domain.Result{
		ContestID:  r.ContestID,
		UserID:     r.UserID,
		FinalScore: r.FinalScore,
		Rank:       r.Rank,
	}
}
