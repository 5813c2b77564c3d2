package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/cohort/pkg/llm"
)

// ScriptedCompleter is a test llm.Completer. It streams Fragments to the
// fragment handler and returns Reply, or Err when set.
type ScriptedCompleter struct {
	mu      sync.Mutex
	prompts []string

	Fragments []string
	Reply     any
	Err       error

	// Gate, when set, blocks each call until it is closed or ctx is done.
	Gate chan struct{}

	// Started receives one value per call once the prompt is recorded.
	Started chan struct{}
}

func NewScriptedCompleter(reply string) *ScriptedCompleter {
	return &ScriptedCompleter{Reply: reply}
}

func (s *ScriptedCompleter) Complete(ctx context.Context, prompt string, onFragment llm.FragmentFunc) (*llm.Completion, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	gate, started := s.Gate, s.Started
	fragments, reply, err := s.Fragments, s.Reply, s.Err
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}

	if onFragment != nil {
		for _, f := range fragments {
			onFragment(f)
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return &llm.Completion{Model: "scripted", Content: reply, StopReason: "stop"}, nil
}

// Prompts returns every prompt seen so far.
func (s *ScriptedCompleter) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *ScriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
