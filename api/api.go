package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
)

// Server is the HTTP gateway in front of the conversation sessions.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The registry and session manager are
// shared with the rest of the process.
func NewServer(c Config) (*Server, error) {
	if c.Registry == nil {
		return nil, errors.New("api server requires a session registry")
	}
	if c.Sessions == nil {
		return nil, errors.New("api server requires a session manager")
	}
	if c.MaxTurnDuration <= 0 {
		c.MaxTurnDuration = DefaultMaxTurnDuration
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: c,
		logger: c.Logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	app.Get("/chat", s.authenticate, s.handleChat)
	app.Post("/chat", s.authenticate, s.handleChat)
	app.Get("/history", s.authenticate, s.handleHistory)
	app.Get("/summary", s.authenticate, s.handleSummary)
	app.Post("/threads", s.authenticate, s.handleThreads)
	app.Get("/search", s.authenticate, s.handleSearch)

	if c.MCPHandler != nil {
		app.All("/mcp", s.authenticate, adaptor.HTTPHandler(c.MCPHandler))
	}

	return s, nil
}

// Handler exposes the server as a net/http handler.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"max_turn_duration", s.config.MaxTurnDuration,
		"auth", s.config.Verifier != nil,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
