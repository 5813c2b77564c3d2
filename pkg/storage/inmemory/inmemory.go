// Package inmemory is a map backed storage.Driver for tests and local runs.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
	"github.com/papercomputeco/cohort/pkg/storage"
)

// Driver keeps checkpoints and summaries in process memory.
type Driver struct {
	// mu guards both maps
	mu sync.RWMutex

	// threads maps a thread ID to its checkpoints keyed by step
	threads map[string]map[int]*checkpoint.Checkpoint

	// summaries holds the latest summary per user
	summaries map[string]*storage.Summary
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		threads:   make(map[string]map[int]*checkpoint.Checkpoint),
		summaries: make(map[string]*storage.Summary),
	}
}

// Append stores cps for threadID, rejecting a step already taken.
func (d *Driver) Append(_ context.Context, threadID string, cps ...*checkpoint.Checkpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.threads[threadID]
	seen := make(map[int]bool, len(cps))
	for _, cp := range cps {
		if cp == nil {
			return storage.ErrNilCheckpoint
		}
		if _, ok := log[cp.Step]; ok || seen[cp.Step] {
			return fmt.Errorf("%w: thread %s step %d", storage.ErrStepConflict, threadID, cp.Step)
		}
		seen[cp.Step] = true
	}

	if log == nil {
		log = make(map[int]*checkpoint.Checkpoint, len(cps))
		d.threads[threadID] = log
	}
	for _, cp := range cps {
		c := *cp
		log[cp.Step] = &c
	}
	return nil
}

// List returns the checkpoints of threadID in insertion order.
func (d *Driver) List(_ context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := d.threads[threadID]
	out := make([]*checkpoint.Checkpoint, 0, len(log))
	for _, cp := range log {
		c := *cp
		out = append(out, &c)
	}
	return out, nil
}

// PutSummary stores s.
func (d *Driver) PutSummary(_ context.Context, s *storage.Summary) error {
	if s == nil {
		return fmt.Errorf("cannot store nil summary")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.summaries[s.UserID]; ok && prev.CreatedAt.After(s.CreatedAt) {
		return nil
	}
	c := *s
	d.summaries[s.UserID] = &c
	return nil
}

// LatestSummary returns the newest summary for userID.
func (d *Driver) LatestSummary(_ context.Context, userID string) (*storage.Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.summaries[userID]
	if !ok {
		return nil, fmt.Errorf("summary for %s: %w", userID, storage.ErrNotFound)
	}
	c := *s
	return &c, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
