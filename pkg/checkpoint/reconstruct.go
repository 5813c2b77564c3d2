package checkpoint

import (
	"cmp"
	"slices"
	"strings"

	"github.com/papercomputeco/cohort/pkg/llm"
)

// Reconstruct replays a thread's checkpoints into an ordered message list.
// Only the first write of each checkpoint is read. Consecutive duplicate
// messages are collapsed. cps is not modified.
func Reconstruct(cps []*Checkpoint) []llm.Message {
	sorted := make([]*Checkpoint, 0, len(cps))
	for _, cp := range cps {
		if cp != nil {
			sorted = append(sorted, cp)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *Checkpoint) int {
		return cmp.Compare(a.Step, b.Step)
	})

	messages := make([]llm.Message, 0, len(sorted))
	for _, cp := range sorted {
		msg, ok := messageOf(cp)
		if !ok {
			continue
		}
		if n := len(messages); n > 0 && messages[n-1] == msg {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func messageOf(cp *Checkpoint) (llm.Message, bool) {
	if len(cp.Writes) == 0 {
		return llm.Message{}, false
	}
	w := cp.Writes[0]
	if len(w.Messages) == 0 {
		return llm.Message{}, false
	}
	text := strings.Join(w.Messages, "\n")
	if text == "" {
		return llm.Message{}, false
	}

	role := llm.RoleAssistant
	if w.Sender == SenderUser || (cp.Source == SourceInput && w.Node == GraphStartMarker) {
		role = llm.RoleUser
	}
	return llm.Message{Role: role, Content: text}, true
}
