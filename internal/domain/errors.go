package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a contest or question does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for duplicate writes and already-applied transitions.
	ErrConflict = errors.New("conflict")
	// ErrIneligible is returned when a user may not join a restricted contest.
	ErrIneligible = errors.New("not eligible")
	// ErrInvalidState is returned when a contest is not in a status that allows the operation.
	ErrInvalidState = errors.New("invalid contest state")
	// ErrStoreUnavailable marks transient infrastructure failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

var (
	ErrContestNotFound      = fmt.Errorf("contest %w", ErrNotFound)
	ErrQuestionNotFound     = fmt.Errorf("question %w", ErrNotFound)
	ErrDuplicateSubmission  = fmt.Errorf("answer already submitted: %w", ErrConflict)
	ErrContestNotStreamable = fmt.Errorf("contest is not waiting or live: %w", ErrInvalidState)
	ErrContestNotJoinable   = fmt.Errorf("contest cannot be joined: %w", ErrInvalidState)
	ErrUserIneligible       = fmt.Errorf("user is %w for this contest", ErrIneligible)
)

// ErrorKind is the closed set of error classes exposed to clients.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindConflict         ErrorKind = "CONFLICT"
	KindIneligible       ErrorKind = "INELIGIBLE"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindStoreUnavailable ErrorKind = "STORE_UNAVAILABLE"
	KindInternal         ErrorKind = "INTERNAL"
)

// KindOf classifies err into the client-facing taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrIneligible):
		return KindIneligible
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

// Unavailable wraps an infrastructure error so it classifies as ErrStoreUnavailable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{err: err}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.err.Error()
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.err}
}
