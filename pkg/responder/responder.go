// Package responder answers one user turn: it retrieves reference records,
// renders a prompt and asks the completion service for the answer.
package responder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/vector"
)

const (
	// DefaultTopK matches per turn.
	DefaultTopK = 2

	// NoResultsAnswer is the reply when retrieval finds nothing.
	NoResultsAnswer = "No matching results found in the database."

	// ApologyAnswer is the reply when retrieval or generation fails.
	ApologyAnswer = "I apologize, but I encountered an error while processing your request. Please try again."
)

// Searcher is the retrieval boundary.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filter vector.Filter) ([]vector.QueryResult, error)
}

// Config wires a Responder. Searcher and Completer are required.
type Config struct {
	Searcher  Searcher
	Completer llm.Completer
	Logger    *slog.Logger

	// TopK defaults to DefaultTopK.
	TopK int
}

// State is the working state of a single Respond call.
type State struct {
	Input       string
	ChatHistory []llm.Message
	Context     []any
	Answer      string
}

// Result is the outcome of a turn. History is the input history with the
// (query, answer) pair appended.
type Result struct {
	Answer  string
	History []llm.Message
	Kind    Kind
	Matches int
}

// Option adjusts a single Respond call.
type Option func(*callOptions)

type callOptions struct {
	onFragment llm.FragmentFunc
}

// WithFragmentHandler streams completion deltas to fn while the answer is
// generated.
func WithFragmentHandler(fn llm.FragmentFunc) Option {
	return func(o *callOptions) {
		o.onFragment = fn
	}
}

var errEmptyCompletion = errors.New("completer returned no completion")

// Responder answers turns from retrieved reference records. It is safe for
// concurrent use.
type Responder struct {
	searcher  Searcher
	completer llm.Completer
	topK      int
	logger    *slog.Logger
}

// New validates c and returns a Responder, defaulting TopK and Logger.
func New(c Config) (*Responder, error) {
	if c.Searcher == nil {
		return nil, errors.New("responder requires a searcher")
	}
	if c.Completer == nil {
		return nil, errors.New("responder requires a completer")
	}

	r := &Responder{
		searcher:  c.Searcher,
		completer: c.Completer,
		topK:      c.TopK,
		logger:    c.Logger,
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Respond never fails: retrieval and generation errors are logged and
// answered with ApologyAnswer.
func (r *Responder) Respond(ctx context.Context, query string, history []llm.Message, opts ...Option) Result {
	o := &callOptions{}
	for _, opt := range opts {
		opt(o)
	}

	state := &State{
		Input:       query,
		ChatHistory: history,
	}
	kind := Classify(query)

	matches, err := r.generate(ctx, state, kind, o)
	if err != nil {
		r.logger.Error("failed to answer query", "kind", kind, "error", err)
		state.Answer = ApologyAnswer
	}

	updated := make([]llm.Message, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, llm.NewUserMessage(query), llm.NewAssistantMessage(state.Answer))

	return Result{
		Answer:  state.Answer,
		History: updated,
		Kind:    kind,
		Matches: matches,
	}
}

func (r *Responder) generate(ctx context.Context, state *State, kind Kind, o *callOptions) (int, error) {
	matches, err := r.searcher.Search(ctx, state.Input, r.topK, kind.Filter())
	if err != nil {
		return 0, err
	}

	r.logger.Debug("retrieved reference records", "kind", kind, "matches", len(matches))

	if len(matches) == 0 {
		state.Answer = NoResultsAnswer
		return 0, nil
	}

	state.Context = Normalize(kind, matches)
	prompt, err := BuildPrompt(state.Input, state.ChatHistory, kind, state.Context)
	if err != nil {
		return len(matches), err
	}

	completion, err := r.completer.Complete(ctx, prompt, o.onFragment)
	if err != nil {
		return len(matches), err
	}
	if completion == nil {
		return len(matches), errEmptyCompletion
	}

	answer, err := completion.Text()
	if err != nil {
		return len(matches), err
	}
	state.Answer = answer
	return len(matches), nil
}
