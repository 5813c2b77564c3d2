// Package session runs conversation turns for a thread: it loads the
// thread's checkpoint log, hands each user message to the responder and
// appends the resulting checkpoints.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
	"github.com/papercomputeco/cohort/pkg/eventstream"
	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/storage"
	"github.com/papercomputeco/cohort/pkg/summary"
)

// eventBuffer is the channel capacity of a turn.
const eventBuffer = 16

// Responder answers a single turn.
type Responder interface {
	Respond(ctx context.Context, query string, history []llm.Message, opts ...responder.Option) responder.Result
}

// SummaryScheduler accepts background summary jobs.
type SummaryScheduler interface {
	Enqueue(job summary.Job) bool
}

// ManagerConfig configures a Manager. Store and Responder are required.
type ManagerConfig struct {
	Store     storage.CheckpointStore
	Responder Responder

	// Publisher is notified after every persisted turn. Optional.
	Publisher eventstream.Publisher

	// Summaries receives a job every SummaryEvery turns. Optional.
	Summaries    SummaryScheduler
	SummaryEvery uint

	Clock  Clock
	Logger *slog.Logger
}

// Manager opens sessions and makes sure a thread runs one turn at a time.
type Manager struct {
	config ManagerConfig
	clock  Clock
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]bool
}

// NewManager creates a session manager.
func NewManager(c ManagerConfig) (*Manager, error) {
	if c.Store == nil {
		return nil, errors.New("session manager requires a checkpoint store")
	}
	if c.Responder == nil {
		return nil, errors.New("session manager requires a responder")
	}

	m := &Manager{
		config: c,
		clock:  c.Clock,
		logger: c.Logger,
		active: make(map[string]bool),
	}
	if m.clock == nil {
		m.clock = systemClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// OpenOption configures Open.
type OpenOption func(*Session)

// WithOwner binds the session to an authenticated principal. Its turns
// record owner on every checkpoint, and a thread already owned by someone
// else fails to open with ErrForbidden.
func WithOwner(owner string) OpenOption {
	return func(s *Session) {
		s.owner = owner
	}
}

// Open loads threadID's log. The same ID always addresses the same log;
// an unknown ID opens an empty one. userID keys the thread's summaries.
func (m *Manager) Open(ctx context.Context, threadID, userID string, opts ...OpenOption) (*Session, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}

	s := &Session{
		manager:  m,
		threadID: threadID,
		userID:   userID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// History returns the reconstructed messages of threadID.
func (m *Manager) History(ctx context.Context, threadID string) ([]llm.Message, error) {
	cps, err := m.config.Store.List(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	return checkpoint.Reconstruct(cps), nil
}

// HistoryFor is History for an authenticated owner. It fails with
// ErrForbidden when threadID belongs to someone else.
func (m *Manager) HistoryFor(ctx context.Context, threadID, owner string) ([]llm.Message, error) {
	cps, err := m.config.Store.List(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	if err := authorize(cps, owner); err != nil {
		return nil, err
	}
	return checkpoint.Reconstruct(cps), nil
}

// Owner returns the principal that owns threadID, or "" for an unowned or
// unknown thread.
func (m *Manager) Owner(ctx context.Context, threadID string) (string, error) {
	cps, err := m.config.Store.List(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	return checkpoint.OwnerOf(cps), nil
}

// authorize lets an anonymous caller through and an owner only into
// threads that are unowned or its own.
func authorize(cps []*checkpoint.Checkpoint, owner string) error {
	if owner == "" {
		return nil
	}
	if current := checkpoint.OwnerOf(cps); current != "" && current != owner {
		return ErrForbidden
	}
	return nil
}

func (m *Manager) begin(threadID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[threadID] {
		return false
	}
	m.active[threadID] = true
	return true
}

func (m *Manager) end(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, threadID)
}

// Session is one thread's conversation, suspended between turns.
type Session struct {
	manager  *Manager
	threadID string
	userID   string
	owner    string

	mu      sync.Mutex
	history []llm.Message
	head    *checkpoint.Checkpoint
}

// ThreadID returns the ID of the thread the session is bound to.
func (s *Session) ThreadID() string { return s.threadID }

// History returns a copy of the messages so far.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

func (s *Session) load(ctx context.Context) error {
	cps, err := s.manager.config.Store.List(ctx, s.threadID)
	if err != nil {
		return fmt.Errorf("loading thread %s: %w", s.threadID, err)
	}
	if err := authorize(cps, s.owner); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = checkpoint.Reconstruct(cps)
	s.head = checkpoint.Latest(cps)
	return nil
}

// Turn runs one retrieval and generation cycle for text. The returned
// channel is closed after the terminal event. When ctx is canceled before
// the answer is persisted nothing is stored and no further events are sent.
func (s *Session) Turn(ctx context.Context, text string) <-chan Event {
	events := make(chan Event, eventBuffer)

	if !s.manager.begin(s.threadID) {
		events <- EventError{Err: ErrTurnInProgress}
		close(events)
		return events
	}

	go s.run(ctx, text, events)
	return events
}

func (s *Session) run(ctx context.Context, text string, events chan<- Event) {
	m := s.manager
	release := sync.OnceFunc(func() { m.end(s.threadID) })
	defer close(events)
	defer release()

	logger := m.logger.With("thread_id", s.threadID)
	started := m.clock.Now()

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// reload so steps continue from what other sessions appended
	if err := s.load(ctx); err != nil {
		send(EventError{Err: err})
		return
	}

	s.mu.Lock()
	history := append([]llm.Message(nil), s.history...)
	head := s.head
	s.mu.Unlock()

	result := m.config.Responder.Respond(ctx, text, history,
		responder.WithFragmentHandler(func(fragment string) {
			if fragment != "" {
				send(EventFragment{Text: fragment})
			}
		}),
	)

	if ctx.Err() != nil {
		logger.Info("turn abandoned before persistence", "reason", ctx.Err())
		return
	}

	cps := checkpoint.NewTurn(head, text, result.Answer, m.clock.Now())
	for _, cp := range cps {
		cp.Owner = s.owner
	}
	if err := m.config.Store.Append(ctx, s.threadID, cps...); err != nil {
		logger.Error("failed to persist turn", "error", err)
		send(EventError{Err: fmt.Errorf("persisting turn: %w", err)})
		return
	}

	s.mu.Lock()
	s.history = result.History
	s.head = cps[len(cps)-1]
	s.mu.Unlock()

	completed := m.clock.Now()
	logger.Info("turn persisted",
		"step", cps[len(cps)-1].Step,
		"kind", result.Kind,
		"matches", result.Matches,
		"duration_ms", completed.Sub(started).Milliseconds(),
	)

	release()
	send(EventDone{Answer: result.Answer})
	s.afterPersist(cps, result, started, completed, logger)
}

func (s *Session) afterPersist(cps []*checkpoint.Checkpoint, result responder.Result, started, completed time.Time, logger *slog.Logger) {
	m := s.manager
	input, output := cps[0], cps[len(cps)-1]

	if m.config.Publisher != nil {
		event := eventstream.NewTurnPersistedEvent(
			eventstream.TurnThreadMeta{
				ThreadID:           s.threadID,
				UserID:             s.userID,
				InputStep:          input.Step,
				OutputStep:         output.Step,
				InputCheckpointID:  input.ID,
				OutputCheckpointID: output.ID,
			},
			eventstream.TurnRequestMeta{
				StartedAt:   started,
				CompletedAt: completed,
				DurationMs:  completed.Sub(started).Milliseconds(),
				Streaming:   true,
			},
			eventstream.TurnContent{
				Kind:    string(result.Kind),
				Matches: result.Matches,
				Input:   input.Writes[0].Messages[0],
				Answer:  result.Answer,
			},
			completed,
		)
		// the turn is already persisted, so the request context no longer matters
		if err := m.config.Publisher.PublishTurn(context.Background(), event); err != nil {
			logger.Warn("failed to publish turn event", "error", err)
		}
	}

	if m.config.Summaries != nil && m.config.SummaryEvery > 0 {
		turns := output.Step / 2
		if turns > 0 && uint(turns)%m.config.SummaryEvery == 0 {
			m.config.Summaries.Enqueue(summary.Job{ThreadID: s.threadID, UserID: s.userID})
		}
	}
}
