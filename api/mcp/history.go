package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/cohort/pkg/llm"
)

var (
	historyToolName    = "conversation_history"
	historyDescription = "Return the messages of a cohort conversation thread in turn order."
)

// HistoryInput is the argument of the history tool.
type HistoryInput struct {
	ThreadID string `json:"thread_id" jsonschema:"the conversation thread id"`
}

// HistoryOutput is the result of the history tool.
type HistoryOutput struct {
	ThreadID string        `json:"thread_id"`
	Messages []llm.Message `json:"messages"`
}

func (s *Server) handleHistory(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	if input.ThreadID == "" {
		return errorResult("thread_id is required"), HistoryOutput{}, nil
	}

	messages, err := s.config.History.History(ctx, input.ThreadID)
	if err != nil {
		return errorResult(fmt.Sprintf("History lookup failed: %v", err)), HistoryOutput{}, nil
	}
	if messages == nil {
		messages = []llm.Message{}
	}

	output := HistoryOutput{ThreadID: input.ThreadID, Messages: messages}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), HistoryOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
