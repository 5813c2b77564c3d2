package session_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
	"github.com/papercomputeco/cohort/pkg/eventstream"
	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/session"
	"github.com/papercomputeco/cohort/pkg/storage/inmemory"
	"github.com/papercomputeco/cohort/pkg/summary"
	testutils "github.com/papercomputeco/cohort/pkg/utils/test"
)

// recordingResponder answers "answer to <query>" after streaming it in two
// fragments, and remembers the history of every call.
type recordingResponder struct {
	mu        sync.Mutex
	histories [][]llm.Message
	gate      chan struct{}
}

func (r *recordingResponder) Respond(ctx context.Context, query string, history []llm.Message, opts ...responder.Option) responder.Result {
	r.mu.Lock()
	r.histories = append(r.histories, append([]llm.Message(nil), history...))
	gate := r.gate
	r.mu.Unlock()

	answer := "answer to " + query
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			answer = responder.ApologyAnswer
		}
	}

	return responder.Result{
		Answer:  answer,
		History: append(append([]llm.Message(nil), history...), llm.NewUserMessage(query), llm.NewAssistantMessage(answer)),
		Kind:    responder.KindCompany,
	}
}

func (r *recordingResponder) calls() [][]llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.histories
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnPersistedEvent
}

func (p *recordingPublisher) PublishTurn(_ context.Context, e *eventstream.TurnPersistedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []summary.Job
}

func (s *recordingScheduler) Enqueue(job summary.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return true
}

func drain(events <-chan session.Event) []session.Event {
	var out []session.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

var _ = Describe("Manager", func() {
	var (
		ctx       context.Context
		store     *inmemory.Driver
		resp      *recordingResponder
		publisher *recordingPublisher
		scheduler *recordingScheduler
		manager   *session.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		resp = &recordingResponder{}
		publisher = &recordingPublisher{}
		scheduler = &recordingScheduler{}

		var err error
		manager, err = session.NewManager(session.ManagerConfig{
			Store:        store,
			Responder:    resp,
			Publisher:    publisher,
			Summaries:    scheduler,
			SummaryEvery: 2,
			Clock:        testutils.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
			Logger:       logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a store and a responder", func() {
		_, err := session.NewManager(session.ManagerConfig{Responder: resp})
		Expect(err).To(HaveOccurred())
		_, err = session.NewManager(session.ManagerConfig{Store: store})
		Expect(err).To(HaveOccurred())
	})

	It("opens an unknown thread with empty history", func() {
		s, err := manager.Open(ctx, "t1", "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.ThreadID()).To(Equal("t1"))
		Expect(s.History()).To(BeEmpty())
	})

	It("rejects an empty thread id", func() {
		_, err := manager.Open(ctx, "", "u1")
		Expect(err).To(HaveOccurred())
	})

	It("runs a turn and persists two checkpoints", func() {
		s, err := manager.Open(ctx, "t1", "u1")
		Expect(err).NotTo(HaveOccurred())

		events := drain(s.Turn(ctx, "hello"))
		Expect(events).To(Equal([]session.Event{session.EventDone{Answer: "answer to hello"}}))

		cps, err := store.List(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(cps).To(HaveLen(2))
		Expect(checkpoint.MaxStep(cps)).To(Equal(2))
		Expect(s.History()).To(Equal([]llm.Message{
			llm.NewUserMessage("hello"),
			llm.NewAssistantMessage("answer to hello"),
		}))
	})

	It("passes exactly the prior pairs to the next turn", func() {
		s, _ := manager.Open(ctx, "t1", "u1")
		drain(s.Turn(ctx, "first"))

		reopened, err := manager.Open(ctx, "t1", "u1")
		Expect(err).NotTo(HaveOccurred())
		drain(reopened.Turn(ctx, "second"))

		calls := resp.calls()
		Expect(calls).To(HaveLen(2))
		Expect(calls[0]).To(BeEmpty())
		Expect(calls[1]).To(Equal([]llm.Message{
			llm.NewUserMessage("first"),
			llm.NewAssistantMessage("answer to first"),
		}))

		history, err := manager.History(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(4))
	})

	It("publishes an event per turn and schedules summaries every N turns", func() {
		s, _ := manager.Open(ctx, "t1", "u1")
		drain(s.Turn(ctx, "one"))
		Expect(scheduler.jobs).To(BeEmpty())
		drain(s.Turn(ctx, "two"))

		Expect(publisher.events).To(HaveLen(2))
		Expect(publisher.events[1].Thread.InputStep).To(Equal(3))
		Expect(publisher.events[1].Thread.OutputStep).To(Equal(4))
		Expect(publisher.events[1].Turn.Input).To(Equal("two"))
		Expect(scheduler.jobs).To(Equal([]summary.Job{{ThreadID: "t1", UserID: "u1"}}))
	})

	It("refuses a concurrent turn on the same thread", func() {
		resp.gate = make(chan struct{})
		s, _ := manager.Open(ctx, "t1", "u1")
		first := s.Turn(ctx, "slow")

		other, _ := manager.Open(ctx, "t1", "u1")
		second := drain(other.Turn(ctx, "fast"))
		Expect(second).To(HaveLen(1))
		Expect(second[0]).To(BeAssignableToTypeOf(session.EventError{}))
		Expect(second[0].(session.EventError).Err).To(MatchError(session.ErrTurnInProgress))

		close(resp.gate)
		Expect(drain(first)).To(Equal([]session.Event{session.EventDone{Answer: "answer to slow"}}))
	})

	It("persists nothing when the turn is canceled", func() {
		resp.gate = make(chan struct{})
		turnCtx, cancel := context.WithCancel(ctx)
		s, _ := manager.Open(ctx, "t1", "u1")
		events := s.Turn(turnCtx, "bye")

		Eventually(func() int { return len(resp.calls()) }).Should(Equal(1))
		cancel()
		Expect(drain(events)).To(BeEmpty())

		cps, err := store.List(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(cps).To(BeEmpty())
		Expect(publisher.events).To(BeEmpty())
	})

	It("aborts the turn with an error when persistence fails", func() {
		failing := &failingStore{Driver: store}
		m, err := session.NewManager(session.ManagerConfig{Store: failing, Responder: resp, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		s, _ := m.Open(ctx, "t1", "u1")
		events := drain(s.Turn(ctx, "hello"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].(session.EventError).Err).To(MatchError(ContainSubstring("disk full")))
		Expect(s.History()).To(BeEmpty())
	})

	It("streams fragments from the real responder", func() {
		vectorDriver := testutils.NewMockVectorDriver()
		vectorDriver.Results = append(vectorDriver.Results, testutils.CompanyResult("Acme", 0.9))
		completer := testutils.NewScriptedCompleter("Acme rocks")
		completer.Fragments = []string{"Acme", " rocks"}

		r, err := responder.New(responder.Config{
			Searcher:  testSearcher{driver: vectorDriver},
			Completer: completer,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		m, _ := session.NewManager(session.ManagerConfig{Store: store, Responder: r, Logger: logger.Nop()})
		s, _ := m.Open(ctx, "t2", "u1")
		Expect(drain(s.Turn(ctx, "tell me about Acme"))).To(Equal([]session.Event{
			session.EventFragment{Text: "Acme"},
			session.EventFragment{Text: " rocks"},
			session.EventDone{Answer: "Acme rocks"},
		}))
	})

	Describe("owned threads", func() {
		BeforeEach(func() {
			s, err := manager.Open(ctx, "alice-thread", "alice", session.WithOwner("alice"))
			Expect(err).NotTo(HaveOccurred())
			Expect(drain(s.Turn(ctx, "my secret pitch"))).To(HaveLen(1))
		})

		It("records the owner on every checkpoint", func() {
			cps, err := store.List(ctx, "alice-thread")
			Expect(err).NotTo(HaveOccurred())
			for _, cp := range cps {
				Expect(cp.Owner).To(Equal("alice"))
			}
			Expect(manager.Owner(ctx, "alice-thread")).To(Equal("alice"))
		})

		It("lets the owner continue the thread", func() {
			s, err := manager.Open(ctx, "alice-thread", "alice", session.WithOwner("alice"))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.History()).To(HaveLen(2))

			history, err := manager.HistoryFor(ctx, "alice-thread", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
		})

		It("keeps another principal out", func() {
			_, err := manager.Open(ctx, "alice-thread", "bob", session.WithOwner("bob"))
			Expect(err).To(MatchError(session.ErrForbidden))

			_, err = manager.HistoryFor(ctx, "alice-thread", "bob")
			Expect(err).To(MatchError(session.ErrForbidden))
			Expect(resp.calls()).To(HaveLen(1))
		})

		It("fails a turn when the thread is claimed after opening", func() {
			s, err := manager.Open(ctx, "fresh", "bob", session.WithOwner("bob"))
			Expect(err).NotTo(HaveOccurred())

			claim := checkpoint.NewTurn(nil, "first", "answer", time.Now())
			for _, cp := range claim {
				cp.Owner = "alice"
			}
			Expect(store.Append(ctx, "fresh", claim...)).To(Succeed())

			events := drain(s.Turn(ctx, "hello"))
			Expect(events).To(HaveLen(1))
			Expect(events[0].(session.EventError).Err).To(MatchError(session.ErrForbidden))
		})

		It("leaves anonymous access unchanged", func() {
			history, err := manager.History(ctx, "alice-thread")
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
		})
	})
})

type failingStore struct {
	*inmemory.Driver
}

func (f *failingStore) Append(context.Context, string, ...*checkpoint.Checkpoint) error {
	return errors.New("disk full")
}
