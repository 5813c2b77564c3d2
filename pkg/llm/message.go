// Package llm holds the provider-neutral types exchanged with text-completion
// services.
package llm

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage returns a message with the user role.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage returns a message with the assistant role.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ErrorResponse is the JSON body returned for failed HTTP requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
