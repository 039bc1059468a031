package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/logger"

	"quiz-battle/internal/domain"
)

// EventType names the events pushed down a contest stream.
type EventType string

const (
	EventWaiting     EventType = "WAITING"
	EventQuestion    EventType = "QUESTION"
	EventResults     EventType = "RESULTS"
	EventLeaderboard EventType = "LEADERBOARD"
	EventEnd         EventType = "END"
	EventError       EventType = "ERROR"
)

// Event is one typed stream message.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// OptionView is an option as shown to players; IsCorrect is only set in results.
type OptionView struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect *bool  `json:"isCorrect,omitempty"`
}

// QuestionView is a question as shown to players.
type QuestionView struct {
	ID         string       `json:"id"`
	OrderIndex int          `json:"orderIndex"`
	Prompt     string       `json:"prompt"`
	TimeLimit  int          `json:"timeLimit"`
	Score      int          `json:"score"`
	Options    []OptionView `json:"options"`
}

type Voter struct {
	Name string `json:"name"`
}

// OptionStats counts the votes an option received.
type OptionStats struct {
	Count int     `json:"count"`
	Users []Voter `json:"users"`
}

// QuestionPayload carries QUESTION events. RemainingTime is in milliseconds,
// ServerTime in Unix milliseconds.
type QuestionPayload struct {
	Question      QuestionView `json:"question"`
	RemainingTime int64        `json:"remainingTime"`
	ServerTime    int64        `json:"serverTime"`
}

// ResultsPayload carries RESULTS events. Stats is keyed by option id and is
// always present, empty when nobody answered.
type ResultsPayload struct {
	Question      QuestionView           `json:"question"`
	RemainingTime int64                  `json:"remainingTime"`
	ServerTime    int64                  `json:"serverTime"`
	Stats         map[string]OptionStats `json:"stats"`
}

type ErrorPayload struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// NewErrorPayload classifies err for clients. Store and internal failures get a fixed
// message so driver details stay in the logs.
func NewErrorPayload(err error) ErrorPayload {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindStoreUnavailable:
		return ErrorPayload{Kind: kind, Message: "service temporarily unavailable"}
	case domain.KindInternal:
		return ErrorPayload{Kind: kind, Message: "internal error"}
	}
	return ErrorPayload{Kind: kind, Message: err.Error()}
}

// ErrorEvent builds the client-visible error event for err.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Payload: NewErrorPayload(err)}
}

// Emitter delivers events to one connected client. An error means the client is gone.
type Emitter interface {
	Emit(event Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event) error

func (f EmitterFunc) Emit(event Event) error { return f(event) }

// StreamRegistry tracks live streams per contest for the lifetime of the process.
type StreamRegistry interface {
	Register(ctx context.Context, contestID string, cancel context.CancelFunc) string
	Release(ctx context.Context, contestID, connID string)
	// Heartbeat marks a registered stream as still alive; called once per poll.
	Heartbeat(ctx context.Context, contestID, connID string)
	Active(ctx context.Context, contestID string) (int, error)
	CloseAll()
}

type StreamConfig struct {
	PollInterval    time.Duration
	LeaderboardSize int
}

// StreamController runs the per-connection polling loop.
type StreamController struct {
	contests  ContestRepository
	records   RecordStore
	ranking   RankingStore
	finalizer Finalizer
	registry  StreamRegistry
	cfg       StreamConfig
	now       func() time.Time
}

func NewStreamController(contests ContestRepository, records RecordStore, ranking RankingStore,
	finalizer Finalizer, registry StreamRegistry, cfg StreamConfig) *StreamController {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 20
	}
	return &StreamController{
		contests:  contests,
		records:   records,
		ranking:   ranking,
		finalizer: finalizer,
		registry:  registry,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (c *StreamController) WithClock(now func() time.Time) *StreamController {
	c.now = now
	return c
}

// Viewers reports how many streams are open for a contest.
func (c *StreamController) Viewers(ctx context.Context, contestID string) (int, error) {
	if _, err := c.records.GetContestStatus(ctx, contestID); err != nil {
		return 0, err
	}
	return c.registry.Active(ctx, contestID)
}

// Open validates that the contest exists and is WAITING or LIVE, and loads its questions.
func (c *StreamController) Open(ctx context.Context, contestID string) (domain.Contest, error) {
	status, err := c.records.GetContestStatus(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}
	if !status.Streamable() {
		return domain.Contest{}, withStatus(domain.ErrContestNotStreamable, status)
	}
	contest, err := c.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}
	contest.Status = status
	return contest, nil
}

// Stream polls the question clock until the contest is over, the client disconnects or
// ctx is canceled. It returns a non-nil error only when the contest stopped being streamable,
// after emitting an ERROR event.
func (c *StreamController) Stream(ctx context.Context, contest domain.Contest, emit Emitter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	connID := c.registry.Register(ctx, contest.ID, cancel)
	defer c.registry.Release(context.Background(), contest.ID, connID)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	last := Phase{Kind: -1}
	for {
		done, err := c.tick(ctx, contest, emit, &last)
		if done {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.registry.Heartbeat(ctx, contest.ID, connID)
		}
	}
}

func (c *StreamController) tick(ctx context.Context, contest domain.Contest, emit Emitter, last *Phase) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}

	now := c.now()
	phase := ContestPhase(now, contest)
	if phase.Kind != last.Kind || phase.Index != last.Index {
		logger.V(1).Infof("contest %s: phase %s index %d", contest.ID, phase.Kind, phase.Index)
		*last = phase
	}

	if phase.Kind == PhaseOver {
		if _, err := c.finalizer.Finalize(ctx, contest.ID); err != nil {
			logger.Warningf("contest %s: finalize from stream failed, scheduler will retry: %v", contest.ID, err)
		}
		_ = emit.Emit(Event{Type: EventEnd})
		return true, nil
	}

	status, err := c.records.GetContestStatus(ctx, contest.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		_ = emit.Emit(ErrorEvent(err))
		return true, err
	case err != nil:
		if ctx.Err() != nil {
			return true, nil
		}
		logger.Warningf("contest %s: status check failed, retrying next tick: %v", contest.ID, err)
		return false, nil
	case status == domain.StatusFinished:
		_ = emit.Emit(Event{Type: EventEnd})
		return true, nil
	case !status.Streamable():
		err := withStatus(domain.ErrContestNotStreamable, status)
		_ = emit.Emit(ErrorEvent(err))
		return true, err
	}

	var event Event
	switch phase.Kind {
	case PhaseWaiting:
		event = Event{Type: EventWaiting}
	case PhaseQuestion:
		question := contest.Questions[phase.Index]
		event = Event{Type: EventQuestion, Payload: QuestionPayload{
			Question:      viewQuestion(question, false),
			RemainingTime: phase.Remaining.Milliseconds(),
			ServerTime:    now.UnixMilli(),
		}}
	case PhaseResults:
		question := contest.Questions[phase.Index]
		stats, err := c.questionStats(ctx, contest.ID, question.ID)
		if err != nil {
			logger.Warningf("contest %s: stats for question %s: %v", contest.ID, question.ID, err)
			stats = map[string]OptionStats{}
		}
		event = Event{Type: EventResults, Payload: ResultsPayload{
			Question:      viewQuestion(question, true),
			RemainingTime: phase.Remaining.Milliseconds(),
			ServerTime:    now.UnixMilli(),
			Stats:         stats,
		}}
	}
	if err := emit.Emit(event); err != nil {
		return true, nil
	}

	board, err := liveLeaderboard(ctx, c.ranking, c.records, contest.ID, c.cfg.LeaderboardSize)
	if err != nil {
		logger.Warningf("contest %s: leaderboard read failed: %v", contest.ID, err)
		return false, nil
	}
	if err := emit.Emit(Event{Type: EventLeaderboard, Payload: board}); err != nil {
		return true, nil
	}
	return false, nil
}

func (c *StreamController) questionStats(ctx context.Context, contestID, questionID string) (map[string]OptionStats, error) {
	submissions, err := c.records.FindSubmissions(ctx, contestID, questionID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		userIDs = append(userIDs, sub.UserID)
	}
	names := resolveNames(ctx, c.records, userIDs)

	stats := make(map[string]OptionStats)
	for _, sub := range submissions {
		for _, optionID := range sub.OptionIDs {
			s := stats[optionID]
			s.Count++
			s.Users = append(s.Users, Voter{Name: names[sub.UserID]})
			stats[optionID] = s
		}
	}
	return stats, nil
}

func viewQuestion(q domain.Question, reveal bool) QuestionView {
	options := make([]OptionView, 0, len(q.Options))
	for _, opt := range q.Options {
		view := OptionView{ID: opt.ID, Text: opt.Text}
		if reveal {
			correct := opt.IsCorrect
			view.IsCorrect = &correct
		}
		options = append(options, view)
	}
	return QuestionView{
		ID:         q.ID,
		OrderIndex: q.OrderIndex,
		Prompt:     q.Prompt,
		TimeLimit:  q.TimeLimit,
		Score:      q.Score,
		Options:    options,
	}
}
