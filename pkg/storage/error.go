package storage

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrStepConflict is returned when a checkpoint step is already taken
	// for the thread.
	ErrStepConflict = errors.New("checkpoint step already exists")

	ErrNilCheckpoint = errors.New("cannot store nil checkpoint")
)
