package app

import (
	"time"

	"quiz-battle/internal/domain"
)

// PhaseKind is what a contest should be showing at a given instant.
type PhaseKind int

const (
	PhaseWaiting PhaseKind = iota
	PhaseQuestion
	PhaseResults
	PhaseOver
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseWaiting:
		return "WAITING"
	case PhaseQuestion:
		return "QUESTION"
	case PhaseResults:
		return "RESULTS"
	default:
		return "OVER"
	}
}

// Phase is the derived state of the question clock. Index and Remaining are
// meaningful only for PhaseQuestion and PhaseResults.
type Phase struct {
	Kind      PhaseKind
	Index     int
	Remaining time.Duration
}

// CurrentPhase derives the active phase purely from elapsed wall-clock time.
// A zero resultsBuffer disables the results interlude.
func CurrentPhase(now, start time.Time, questions []domain.Question, resultsBuffer time.Duration) Phase {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return Phase{Kind: PhaseWaiting, Index: -1}
	}

	var cumulative time.Duration
	for i, q := range questions {
		questionEnd := cumulative + q.Duration()
		if elapsed < questionEnd {
			return Phase{Kind: PhaseQuestion, Index: i, Remaining: questionEnd - elapsed}
		}
		cumulative = questionEnd

		if resultsBuffer > 0 {
			resultsEnd := cumulative + resultsBuffer
			if elapsed < resultsEnd {
				return Phase{Kind: PhaseResults, Index: i, Remaining: resultsEnd - elapsed}
			}
			cumulative = resultsEnd
		}
	}
	return Phase{Kind: PhaseOver, Index: len(questions)}
}

// ContestPhase is CurrentPhase for a loaded contest.
func ContestPhase(now time.Time, contest domain.Contest) Phase {
	return CurrentPhase(now, contest.StartTime, contest.Questions, contest.ResultsBuffer())
}
