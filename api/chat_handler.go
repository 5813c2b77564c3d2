package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/session"
)

const errTurnTimeout = "turn exceeded maximum duration"

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
}

// handleChat runs one turn and streams the answer as server-sent events.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: "invalid request body",
			})
		}
	} else {
		req.Message = c.Query("message")
		req.ThreadID = c.Query("threadId")
	}

	// fiber strings alias the request buffer, which fasthttp reuses once
	// the handler returns; the turn keeps both past that point
	req.Message = utils.CopyString(req.Message)
	req.ThreadID = utils.CopyString(req.ThreadID)

	if req.Message == "" || req.ThreadID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "Message and threadId are required",
		})
	}

	threadID := req.ThreadID
	userID := threadID
	var opts []session.OpenOption
	if p, ok := principalOf(c); ok {
		userID = p.ID
		opts = append(opts, session.WithOwner(p.ID))
	}

	logger := s.logger.With("thread_id", threadID)

	sess, err := s.config.Sessions.Open(c.UserContext(), threadID, userID, opts...)
	switch {
	case errors.Is(err, session.ErrForbidden):
		logger.Warn("rejected turn on a thread owned by another user", "user_id", userID)
		return c.Status(fiber.StatusForbidden).JSON(llm.ErrorResponse{
			Error: err.Error(),
		})
	case err != nil:
		logger.Error("failed to open session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: err.Error(),
		})
	}
	s.config.Registry.Adopt(threadID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// The turn outlives the handler: fasthttp drains the pipe after the
	// handler returns, so the request context cannot bound it.
	ctx, cancel := context.WithTimeout(context.Background(), s.config.MaxTurnDuration)

	pr, pw := io.Pipe()
	stream := newEventStream(pw, cancel)
	stream.watch(ctx, abortGrace)
	go s.streamTurn(ctx, cancel, stream, sess, req.Message, logger)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// streamTurn forwards session events as frames: the cumulative answer on
// every fragment, then [DONE] or a single error frame.
func (s *Server) streamTurn(ctx context.Context, cancel context.CancelFunc, stream *eventStream, sess *session.Session, message string, logger *slog.Logger) {
	defer cancel()
	defer stream.Close()

	events := sess.Turn(ctx, message)

	var answer strings.Builder
	last := ""
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// closed without a terminal event: the turn was abandoned
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					stream.Error(errTurnTimeout)
				}
				return
			}

			switch e := ev.(type) {
			case session.EventFragment:
				answer.WriteString(e.Text)
				last = answer.String()
				if !stream.Send(last) {
					logger.Info("client disconnected mid-turn")
					return
				}
			case session.EventDone:
				if e.Answer != last {
					stream.Send(e.Answer)
				}
				stream.Done()
				return
			case session.EventError:
				logger.Warn("turn failed", "error", e.Err)
				stream.Error(e.Err.Error())
				return
			}

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.Warn("turn timed out", "max_turn_duration", s.config.MaxTurnDuration)
				stream.Error(errTurnTimeout)
			}
			return
		}
	}
}
