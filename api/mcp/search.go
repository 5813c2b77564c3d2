package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/cohort/pkg/responder"
)

var (
	searchToolName    = "search_records"
	searchDescription = "Search reference records of past accelerator companies and applications. Returns the most similar records for the query text. Kind is \"company\" or \"application\"; when omitted it is inferred from the query."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query text"`
	Kind  string `json:"kind,omitempty" jsonschema:"record kind: company or application"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 2)"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string `json:"query"`
	Kind    string `json:"kind"`
	Records []any  `json:"records"`
	Count   int    `json:"count"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	if input.Query == "" {
		return errorResult("query is required"), SearchOutput{}, nil
	}

	kind := responder.Classify(input.Query)
	switch responder.Kind(input.Kind) {
	case "":
	case responder.KindCompany, responder.KindApplication:
		kind = responder.Kind(input.Kind)
	default:
		return errorResult(fmt.Sprintf("unknown kind %q", input.Kind)), SearchOutput{}, nil
	}

	topK := input.TopK
	if topK <= 0 {
		topK = responder.DefaultTopK
	}

	logger.Debug("MCP search request", "query", input.Query, "kind", kind, "top_k", topK)

	matches, err := s.config.Searcher.Search(ctx, input.Query, topK, kind.Filter())
	if err != nil {
		logger.Error("failed to search records", "error", err)
		return errorResult(fmt.Sprintf("Failed to search records: %v", err)), SearchOutput{}, nil
	}

	records := responder.Normalize(kind, matches)
	output := SearchOutput{
		Query:   input.Query,
		Kind:    string(kind),
		Records: records,
		Count:   len(records),
	}

	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", "error", err)
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
