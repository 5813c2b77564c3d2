package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRetention     = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// Clock abstracts time for the registry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RegistryConfig configures a Registry. Zero values take defaults.
type RegistryConfig struct {
	// Retention is how long an untouched thread stays tracked.
	Retention time.Duration

	// SweepInterval is the period of the background sweep started by Start.
	SweepInterval time.Duration

	Clock  Clock
	Logger *slog.Logger
}

// Registry tracks the thread IDs issued to clients and forgets them after
// the retention period. The timestamp is the time a thread was first
// recorded; reuse does not refresh it. Forgetting a thread does not touch
// its checkpoint log.
type Registry struct {
	mu      sync.Mutex
	threads map[string]time.Time

	retention time.Duration
	interval  time.Duration
	clock     Clock
	logger    *slog.Logger

	done    chan struct{}
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewRegistry creates a Registry. Call Start to begin sweeping.
func NewRegistry(c RegistryConfig) *Registry {
	r := &Registry{
		threads:   make(map[string]time.Time),
		retention: c.Retention,
		interval:  c.SweepInterval,
		clock:     c.Clock,
		logger:    c.Logger,
		done:      make(chan struct{}),
	}
	if r.retention <= 0 {
		r.retention = DefaultRetention
	}
	if r.interval <= 0 {
		r.interval = DefaultSweepInterval
	}
	if r.clock == nil {
		r.clock = systemClock{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve returns existingID when it is tracked. Otherwise it mints and
// records a new ID.
func (r *Registry) Resolve(existingID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID != "" {
		if _, ok := r.threads[existingID]; ok {
			return existingID
		}
	}

	id := uuid.NewString()
	r.threads[id] = r.clock.Now()
	return id
}

// Adopt records a client supplied ID under its own name if it is not
// tracked yet, and returns it.
func (r *Registry) Adopt(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.threads[id]; !ok {
		r.threads[id] = r.clock.Now()
	}
	return id
}

// Has reports whether id is tracked.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.threads[id]
	return ok
}

// Len returns the number of tracked threads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}

// Sweep forgets every thread recorded more than the retention ago and
// returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	removed := 0
	for id, ts := range r.threads {
		if now.Sub(ts) > r.retention {
			delete(r.threads, id)
			removed++
		}
	}
	return removed
}

// Start launches the periodic sweep. Calling it more than once, or after
// Stop, does nothing.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	r.wg.Add(1)
	go r.sweepLoop()
}

// Stop ends the periodic sweep and waits for it to exit. It is safe to call
// multiple times.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("swept expired threads", "removed", n, "tracked", r.Len())
			}
		case <-r.done:
			return
		}
	}
}
