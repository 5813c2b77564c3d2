// Package api serves the cohort chat gateway: the streaming /chat endpoint
// and the thread, history and summary routes around it.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/cohort/pkg/auth"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/session"
	"github.com/papercomputeco/cohort/pkg/storage"
)

// DefaultMaxTurnDuration bounds a single /chat request.
const DefaultMaxTurnDuration = 2 * time.Minute

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// MaxTurnDuration is the total time a /chat stream may stay open.
	MaxTurnDuration time.Duration

	Registry *session.Registry
	Sessions *session.Manager

	// Summaries backs GET /summary. Optional.
	Summaries storage.SummaryStore

	// Searcher backs GET /search. Optional.
	Searcher responder.Searcher

	// Verifier authenticates requests. A nil Verifier serves every request
	// anonymously.
	Verifier auth.Verifier

	// MCPHandler is mounted on /mcp when set.
	MCPHandler http.Handler

	Logger *slog.Logger
}
