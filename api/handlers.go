package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/polar/pkg/feed"
	"github.com/papercomputeco/polar/pkg/storage"
)

// FeedResponse is the item served by GET /v1/feed/next.
type FeedResponse struct {
	ItemID     string  `json:"item_id"`
	BiasScore  float64 `json:"bias_score"`
	Title      string  `json:"title,omitempty"`
	UploaderID string  `json:"uploader_id,omitempty"`
	URL        string  `json:"url,omitempty"`

	UserBias  float64 `json:"user_bias"`
	PoleCount int     `json:"pole_count"`
	PoolSize  int     `json:"pool_size"`
}

// UserStatsResponse is the body of GET /v1/users/:id.
type UserStatsResponse struct {
	UserID    string  `json:"user_id"`
	BiasScore float64 `json:"bias_score"`
	PoleCount int     `json:"pole_count"`
	Visited   int     `json:"visited"`
	Unvisited int     `json:"unvisited"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleFeedNext serves the next item for ?user=.
func (s *Server) handleFeedNext(c *fiber.Ctx) error {
	userID := c.Query("user")
	if userID == "" {
		return errorJSON(c, fiber.StatusBadRequest, KindInvalidArgument, "user query parameter is required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	sel, err := s.config.Selector.SelectNext(ctx, userID)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(newFeedResponse(sel))
}

// handleFeedReset clears the visited set for ?user=.
func (s *Server) handleFeedReset(c *fiber.Ctx) error {
	userID := c.Query("user")
	if userID == "" {
		return errorJSON(c, fiber.StatusBadRequest, KindInvalidArgument, "user query parameter is required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.config.Selector.Reset(ctx, userID); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleUserStats returns the user's bias state and feed position.
func (s *Server) handleUserStats(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	stats, err := s.config.Selector.Stats(ctx, c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(UserStatsResponse{
		UserID:    stats.User.ID,
		BiasScore: stats.User.BiasScore,
		PoleCount: stats.User.PoleCount,
		Visited:   stats.Visited,
		Unvisited: stats.Unvisited,
	})
}

// handleUserRecompute rebuilds the user's bias from their served items.
func (s *Server) handleUserRecompute(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	user, err := s.config.Selector.Recompute(ctx, c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(user)
}

func newFeedResponse(sel *feed.Selection) FeedResponse {
	item := sel.Item
	if item == nil {
		item = &storage.Item{}
	}
	return FeedResponse{
		ItemID:     item.ID,
		BiasScore:  item.BiasScore,
		Title:      item.Title,
		UploaderID: item.UploaderID,
		URL:        item.URL,
		UserBias:   sel.User.BiasScore,
		PoleCount:  sel.User.PoleCount,
		PoolSize:   sel.PoolSize,
	}
}
