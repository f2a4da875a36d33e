package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/polar/pkg/vector"
)

const defaultTopK = 5

// SearchResponse is the body of the similarity routes.
type SearchResponse struct {
	Query   string               `json:"query,omitempty"`
	ItemID  string               `json:"item_id,omitempty"`
	Results []vector.QueryResult `json:"results"`
	Count   int                  `json:"count"`
}

// handleSimilar handles GET /v1/similar/:id requests.
// Query parameters:
//   - k (optional, default 5): number of results to return
func (s *Server) handleSimilar(c *fiber.Ctx) error {
	if s.config.Index == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, KindUnavailable, "similarity index is not configured")
	}

	k, err := positiveInt(c.Query("k"), defaultTopK)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, KindInvalidArgument, "k must be a positive integer")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	itemID := c.Params("id")
	results, err := s.config.Index.SimilarTo(ctx, itemID, k)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(SearchResponse{ItemID: itemID, Results: results, Count: len(results)})
}

// handleSearchEndpoint handles GET /v1/search requests.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional, default 5): number of results to return
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	// Verify search is configured
	if s.config.Index == nil || s.config.Embedder == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, KindUnavailable,
			"search is not configured: similarity index and embedder are required")
	}

	query := c.Query("query")
	if query == "" {
		return errorJSON(c, fiber.StatusBadRequest, KindInvalidArgument, "query parameter is required")
	}

	topK, err := positiveInt(c.Query("top_k"), defaultTopK)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, KindInvalidArgument, "top_k must be a positive integer")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	embedding, err := s.config.Embedder.Embed(ctx, query)
	if err != nil {
		return s.writeError(c, err)
	}

	results, err := s.config.Index.Search(ctx, embedding, topK)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(SearchResponse{Query: query, Results: results, Count: len(results)})
}

func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
