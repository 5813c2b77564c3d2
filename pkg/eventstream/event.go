// Package eventstream publishes a record of every persisted conversation
// turn for downstream consumers.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "cohort.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Thread        TurnThreadMeta  `json:"thread"`
	RequestMeta   TurnRequestMeta `json:"request_meta"`
	Turn          TurnContent     `json:"turn"`
}

// TurnThreadMeta locates the turn in its thread's checkpoint log.
type TurnThreadMeta struct {
	ThreadID           string `json:"thread_id"`
	UserID             string `json:"user_id,omitempty"`
	InputStep          int    `json:"input_step"`
	OutputStep         int    `json:"output_step"`
	InputCheckpointID  string `json:"input_checkpoint_id"`
	OutputCheckpointID string `json:"output_checkpoint_id"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
}

// TurnContent is what was asked and answered.
type TurnContent struct {
	Kind    string `json:"kind"`
	Matches int    `json:"matches"`
	Input   string `json:"input"`
	Answer  string `json:"answer"`
}

// NewTurnPersistedEvent stamps a v1 event with a fresh ID.
func NewTurnPersistedEvent(thread TurnThreadMeta, meta TurnRequestMeta, turn TurnContent, now time.Time) *TurnPersistedEvent {
	return &TurnPersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnPersisted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     now,
		Thread:        thread,
		RequestMeta:   meta,
		Turn:          turn,
	}
}
