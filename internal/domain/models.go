package domain

import "time"

// ContestStatus is the forward-only lifecycle state of a contest.
type ContestStatus string

const (
	StatusDraft     ContestStatus = "DRAFT"
	StatusPublished ContestStatus = "PUBLISHED"
	StatusWaiting   ContestStatus = "WAITING"
	StatusLive      ContestStatus = "LIVE"
	StatusFinished  ContestStatus = "FINISHED"
)

const (
	// DefaultTimeLimit applies to questions stored without a time limit.
	DefaultTimeLimit = 20 * time.Second
	// ResultsBuffer is the interlude shown after each question when ShowResults is set.
	ResultsBuffer = 10 * time.Second
)

var statusOrder = map[ContestStatus]int{
	StatusDraft:     0,
	StatusPublished: 1,
	StatusWaiting:   2,
	StatusLive:      3,
	StatusFinished:  4,
}

// Before reports whether s precedes other in the lifecycle.
func (s ContestStatus) Before(other ContestStatus) bool {
	return statusOrder[s] < statusOrder[other]
}

// Streamable reports whether clients may open a question stream in this status.
func (s ContestStatus) Streamable() bool {
	return s == StatusWaiting || s == StatusLive
}

// Joinable reports whether participants may still join. Joining closes once the contest goes live.
func (s ContestStatus) Joinable() bool {
	return s != StatusLive && s != StatusFinished
}

// Option is one answer candidate of a question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is a timed contest question. A question may have several correct options.
type Question struct {
	ID         string   `json:"id"`
	ContestID  string   `json:"contestId"`
	OrderIndex int      `json:"orderIndex"`
	Prompt     string   `json:"prompt"`
	TimeLimit  int      `json:"timeLimit"` // seconds, defaults to 20 if zero
	Score      int      `json:"score"`
	Options    []Option `json:"options"`
}

// Duration returns how long the question is shown.
func (q Question) Duration() time.Duration {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return time.Duration(q.TimeLimit) * time.Second
}

// CorrectOptionIDs returns the set of option ids flagged correct.
func (q Question) CorrectOptionIDs() map[string]struct{} {
	correct := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if opt.IsCorrect {
			correct[opt.ID] = struct{}{}
		}
	}
	return correct
}

// Contest is a timed battle. Questions are kept sorted by OrderIndex.
type Contest struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	StartTime   time.Time     `json:"startTime"`
	Status      ContestStatus `json:"status"`
	ShowResults bool          `json:"showResults"`
	OpenToAll   bool          `json:"openToAll"`
	BatchIDs    []string      `json:"batchIds,omitempty"`
	Questions   []Question    `json:"questions"`
}

// ResultsBuffer returns the interlude length after every question, zero when disabled.
func (c Contest) ResultsBuffer() time.Duration {
	if c.ShowResults {
		return ResultsBuffer
	}
	return 0
}

// EndTime is StartTime plus every question duration and results interlude.
func (c Contest) EndTime() time.Time {
	total := time.Duration(0)
	for _, q := range c.Questions {
		total += q.Duration() + c.ResultsBuffer()
	}
	return c.StartTime.Add(total)
}

// Question looks up a question of this contest by id.
func (c Contest) Question(questionID string) (Question, bool) {
	for _, q := range c.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// Admits reports whether a user holding the given batches may join.
func (c Contest) Admits(userBatchIDs []string) bool {
	if c.OpenToAll {
		return true
	}
	for _, want := range c.BatchIDs {
		for _, have := range userBatchIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Participant is a (contest, user) membership created on join.
type Participant struct {
	ContestID string
	UserID    string
	JoinedAt  time.Time
}

// Submission is the write-once answer of a user to one question.
type Submission struct {
	ContestID   string    `json:"contestId"`
	UserID      string    `json:"userId"`
	QuestionID  string    `json:"questionId"`
	OptionIDs   []string  `json:"optionIds"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// RankedEntry is one row of the ephemeral ranking store, ordered by the store.
type RankedEntry struct {
	UserID string
	Score  int
}

// LeaderboardEntry is a ranked, display-ready row.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

// Result is the durable final standing of a user in a finished contest.
type Result struct {
	ContestID  string `json:"contestId"`
	UserID     string `json:"userId"`
	FinalScore int    `json:"finalScore"`
	Rank       int    `json:"rank"`
}
