package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/session"
	"github.com/papercomputeco/cohort/pkg/storage"
	"github.com/papercomputeco/cohort/pkg/summary"
)

type historyResponse struct {
	ThreadID string        `json:"threadId"`
	Messages []llm.Message `json:"messages"`
}

type summaryResponse struct {
	summary.Sections
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type threadRequest struct {
	ThreadID string `json:"threadId"`
}

type threadResponse struct {
	ThreadID string `json:"threadId"`
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleHistory replays a thread's checkpoints as messages. An
// authenticated principal can only read its own threads.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	threadID := c.Query("threadId")
	if threadID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "threadId is required",
		})
	}

	var (
		messages []llm.Message
		err      error
	)
	if p, ok := principalOf(c); ok {
		messages, err = s.config.Sessions.HistoryFor(c.UserContext(), threadID, p.ID)
	} else {
		messages, err = s.config.Sessions.History(c.UserContext(), threadID)
	}
	if errors.Is(err, session.ErrForbidden) {
		return c.Status(fiber.StatusForbidden).JSON(llm.ErrorResponse{
			Error: err.Error(),
		})
	}
	if err != nil {
		s.logger.Error("failed to load history", "thread_id", threadID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: err.Error(),
		})
	}
	if messages == nil {
		messages = []llm.Message{}
	}

	return c.JSON(historyResponse{ThreadID: threadID, Messages: messages})
}

// handleSummary renders the caller's latest summary. An authenticated
// principal always reads its own summary.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if p, ok := principalOf(c); ok {
		userID = p.ID
	}
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "userId is required",
		})
	}

	resp := summaryResponse{Sections: summary.Project("")}
	if s.config.Summaries == nil {
		return c.JSON(resp)
	}

	latest, err := s.config.Summaries.LatestSummary(c.UserContext(), userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(resp)
	case err != nil:
		s.logger.Error("failed to load summary", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: err.Error(),
		})
	}

	resp.Sections = summary.Project(latest.Text)
	resp.CreatedAt = &latest.CreatedAt
	return c.JSON(resp)
}

// handleThreads returns the given thread id when it is live, or a new one.
// A thread owned by another principal is never handed back.
func (s *Server) handleThreads(c *fiber.Ctx) error {
	var req threadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: "invalid request body",
			})
		}
	}
	req.ThreadID = utils.CopyString(req.ThreadID)

	if p, ok := principalOf(c); ok && req.ThreadID != "" {
		owner, err := s.config.Sessions.Owner(c.UserContext(), req.ThreadID)
		if err != nil {
			s.logger.Error("failed to load thread owner", "thread_id", req.ThreadID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
				Error: err.Error(),
			})
		}
		if owner != "" && owner != p.ID {
			req.ThreadID = ""
		}
	}

	return c.JSON(threadResponse{ThreadID: s.config.Registry.Resolve(req.ThreadID)})
}
