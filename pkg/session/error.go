package session

import "errors"

var (
	// ErrTurnInProgress is returned when a thread already has a running turn.
	ErrTurnInProgress = errors.New("a turn is already in progress for this thread")

	// ErrForbidden is returned when a thread is owned by another principal.
	ErrForbidden = errors.New("thread belongs to another user")
)
