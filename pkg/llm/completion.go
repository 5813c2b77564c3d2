package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// FragmentFunc receives each text delta of a streamed completion in order.
type FragmentFunc func(fragment string)

// Completer is a text-completion service.
type Completer interface {
	// Complete sends prompt and returns the full completion. When onFragment
	// is non-nil the completion is streamed and each delta is handed to it
	// before Complete returns.
	Complete(ctx context.Context, prompt string, onFragment FragmentFunc) (*Completion, error)
}

// Completion is the result of a single Complete call.
type Completion struct {
	Model string `json:"model,omitempty"`

	// Content is usually a string. Providers that return structured output
	// (JSON mode, tool payloads) may set any JSON-serializable value.
	Content any `json:"content"`

	StopReason string `json:"stop_reason,omitempty"`
	Usage      *Usage `json:"usage,omitempty"`
}

// Usage contains token counts reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Text returns the completion as text. String content is returned verbatim;
// anything else is serialized to JSON.
func (c *Completion) Text() (string, error) {
	if c == nil {
		return "", nil
	}

	switch v := c.Content.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("serializing completion content: %w", err)
		}
		return string(b), nil
	}
}
