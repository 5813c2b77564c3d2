package responder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papercomputeco/cohort/pkg/llm"
)

const persona = `You are an experienced startup accelerator partner helping a founder prepare their application.
Use the reference records below, drawn from companies and applications of past batches, to ground your advice.
Be specific and candid. Point out what strong applications did differently and suggest concrete improvements.
If the records are not relevant to the question, say so and answer from general experience.
Format your answer in markdown.`

// RenderHistory serializes history as "Human:" and "Assistant:" lines.
func RenderHistory(history []llm.Message) string {
	var b strings.Builder
	for _, msg := range history {
		speaker := "Assistant"
		if msg.Role == llm.RoleUser {
			speaker = "Human"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Content)
	}
	return b.String()
}

// BuildPrompt renders the single completion prompt for one turn.
func BuildPrompt(query string, history []llm.Message, k Kind, records []any) (string, error) {
	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding records: %w", err)
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nConversation so far:\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(RenderHistory(history))
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", query)
	fmt.Fprintf(&b, "\nReference %s records:\n%s\n", k, encoded)
	return b.String(), nil
}
