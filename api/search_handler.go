package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/responder"
)

const (
	defaultSearchTopK = 5
	maxSearchTopK     = 50
)

// searchResponse lists reference records without generating an answer.
type searchResponse struct {
	Query   string         `json:"query"`
	Kind    responder.Kind `json:"kind"`
	Count   int            `json:"count"`
	Results []any          `json:"results"`
}

// handleSearch handles GET /search.
// Query parameters:
//   - query (required): the search text
//   - kind (optional): company or application, classified from query when empty
//   - top_k (optional, default 5): number of records to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	if s.config.Searcher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{
			Error: "search is not configured",
		})
	}

	// query aliases the request buffer and must not outlive the handler.
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "query parameter is required",
		})
	}

	kind := responder.Classify(query)
	if raw := c.Query("kind"); raw != "" {
		parsed, err := responder.ParseKind(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: err.Error(),
			})
		}
		kind = parsed
	}

	topK := defaultSearchTopK
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed <= 0 || parsed > maxSearchTopK {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
				Error: "top_k must be an integer between 1 and " + strconv.Itoa(maxSearchTopK),
			})
		}
		topK = parsed
	}

	matches, err := s.config.Searcher.Search(c.UserContext(), query, topK, kind.Filter())
	if err != nil {
		s.logger.Error("search failed", "kind", kind, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: err.Error(),
		})
	}

	results := responder.Normalize(kind, matches)
	return c.JSON(searchResponse{
		Query:   query,
		Kind:    kind,
		Count:   len(results),
		Results: results,
	})
}
