// Package mcp exposes reference record search and conversation history as
// MCP (Model Context Protocol) tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/utils"
)

// HistoryLoader returns the reconstructed messages of a thread.
type HistoryLoader interface {
	History(ctx context.Context, threadID string) ([]llm.Message, error)
}

// Config holds the collaborators behind the MCP tools.
type Config struct {
	// Searcher backs the search_records tool.
	Searcher responder.Searcher

	// History backs the conversation_history tool. Optional.
	History HistoryLoader

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

// Server exposes cohort over the Model Context Protocol.
type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the configured tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cohort",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Searcher == nil {
			return nil, errors.New("searcher is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)

		if c.History != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        historyToolName,
				Description: historyDescription,
			}, s.handleHistory)
		}
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
