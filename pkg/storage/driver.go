// Package storage defines the durable stores for thread checkpoints and
// conversation summaries.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
)

// CheckpointStore is the append-only per-thread checkpoint log.
type CheckpointStore interface {
	// Append stores cps for threadID in one transaction. If any step
	// already exists none are stored and ErrStepConflict is returned.
	Append(ctx context.Context, threadID string, cps ...*checkpoint.Checkpoint) error

	// List returns every checkpoint of threadID in no particular order.
	// An unknown thread has an empty log.
	List(ctx context.Context, threadID string) ([]*checkpoint.Checkpoint, error)
}

// Summary is a derived conversation summary for a user.
type Summary struct {
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryStore persists per-user conversation summaries.
type SummaryStore interface {
	PutSummary(ctx context.Context, s *Summary) error

	// LatestSummary returns the most recent summary for userID, or
	// ErrNotFound.
	LatestSummary(ctx context.Context, userID string) (*Summary, error)
}

// Driver is a backend holding both stores.
type Driver interface {
	CheckpointStore
	SummaryStore

	Close() error
}
