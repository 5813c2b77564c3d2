package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cohort/pkg/auth"
	"github.com/papercomputeco/cohort/pkg/llm"
)

const principalKey = "cohort.principal"

// authenticate verifies the bearer token when a verifier is configured.
// EventSource clients cannot set headers, so an access_token query
// parameter is accepted as well.
func (s *Server) authenticate(c *fiber.Ctx) error {
	if s.config.Verifier == nil {
		return c.Next()
	}

	token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		token = c.Query("access_token")
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{
			Error: auth.ErrMissingToken.Error(),
		})
	}

	principal, err := s.config.Verifier.Verify(token)
	if err != nil {
		s.logger.Debug("rejected token", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{
			Error: err.Error(),
		})
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

func principalOf(c *fiber.Ctx) (auth.Principal, bool) {
	p, ok := c.Locals(principalKey).(auth.Principal)
	return p, ok
}
