// Package checkpoint models the per-thread append-only conversation log and
// rebuilds the message list from it.
package checkpoint

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SourceInput marks a checkpoint written from user input.
	SourceInput = "input"

	// SourceLoop marks a checkpoint written by the responder.
	SourceLoop = "loop"

	// GraphStartMarker is the node name of input writes.
	GraphStartMarker = "__start__"

	// ResponderNode is the node name of answer writes.
	ResponderNode = "responder"

	SenderUser      = "user"
	SenderAssistant = "assistant"

	// DefaultNamespace keys the parent link in Parents.
	DefaultNamespace = ""
)

// Write is one channel write recorded by a checkpoint.
type Write struct {
	Node     string   `json:"node"`
	Sender   string   `json:"sender"`
	Messages []string `json:"messages"`
}

// Checkpoint is a single step of a thread's log.
type Checkpoint struct {
	ID     string  `json:"id"`
	Step   int     `json:"step"`
	Source string  `json:"source"`
	Writes []Write `json:"writes"`

	// Owner is the principal that wrote the checkpoint, empty for
	// unauthenticated turns.
	Owner string `json:"owner,omitempty"`

	// Parents maps a namespace to the parent checkpoint ID.
	Parents map[string]string `json:"parents,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MaxStep returns the highest step in cps, or 0 for an empty log.
func MaxStep(cps []*Checkpoint) int {
	maxStep := 0
	for _, cp := range cps {
		if cp != nil && cp.Step > maxStep {
			maxStep = cp.Step
		}
	}
	return maxStep
}

// Latest returns the checkpoint with the highest step, or nil.
func Latest(cps []*Checkpoint) *Checkpoint {
	var latest *Checkpoint
	for _, cp := range cps {
		if cp != nil && (latest == nil || cp.Step > latest.Step) {
			latest = cp
		}
	}
	return latest
}

// OwnerOf returns the owner of the earliest owned checkpoint, or "" when
// no checkpoint records one.
func OwnerOf(cps []*Checkpoint) string {
	var first *Checkpoint
	for _, cp := range cps {
		if cp == nil || cp.Owner == "" {
			continue
		}
		if first == nil || cp.Step < first.Step {
			first = cp
		}
	}
	if first == nil {
		return ""
	}
	return first.Owner
}

// NewTurn builds the input and answer checkpoints that follow prev, which
// may be nil for a new thread.
func NewTurn(prev *Checkpoint, userText, answer string, now time.Time) []*Checkpoint {
	step := 0
	var parents map[string]string
	if prev != nil {
		step = prev.Step
		parents = map[string]string{DefaultNamespace: prev.ID}
	}

	input := &Checkpoint{
		ID:     uuid.NewString(),
		Step:   step + 1,
		Source: SourceInput,
		Writes: []Write{{
			Node:     GraphStartMarker,
			Sender:   SenderUser,
			Messages: []string{userText},
		}},
		Parents:   parents,
		CreatedAt: now,
	}

	output := &Checkpoint{
		ID:     uuid.NewString(),
		Step:   step + 2,
		Source: SourceLoop,
		Writes: []Write{{
			Node:     ResponderNode,
			Sender:   SenderAssistant,
			Messages: []string{answer},
		}},
		Parents:   map[string]string{DefaultNamespace: input.ID},
		CreatedAt: now,
	}

	return []*Checkpoint{input, output}
}
