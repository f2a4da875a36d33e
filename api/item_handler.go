package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/polar/pkg/ingest"
)

// ItemRequest is the body of PUT /v1/items/:id.
type ItemRequest struct {
	BiasScore  *float64  `json:"bias_score,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Title      string    `json:"title,omitempty"`
	UploaderID string    `json:"uploader_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
}

// handleGetItem returns catalog metadata for one item.
func (s *Server) handleGetItem(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	item, err := s.storer.Get(ctx, c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(item)
}

// handlePutItem queues an item for ingestion.
func (s *Server) handlePutItem(c *fiber.Ctx) error {
	if s.config.Ingest == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, KindUnavailable, "ingestion is not configured")
	}

	var req ItemRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, KindInvalidArgument, "invalid request body")
	}

	job := ingest.Record{
		ItemID:     c.Params("id"),
		BiasScore:  req.BiasScore,
		Embedding:  req.Embedding,
		Title:      req.Title,
		UploaderID: req.UploaderID,
		URL:        req.URL,
		Transcript: req.Transcript,
	}.Job()

	if err := s.config.Ingest.Validate(job); err != nil {
		return s.writeError(c, err)
	}
	if !s.config.Ingest.Enqueue(job) {
		return errorJSON(c, fiber.StatusServiceUnavailable, KindUnavailable, "ingest queue is full")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"item_id": job.Item.ID, "status": "queued"})
}

// handleDeleteItem removes an item from the catalog. Visited entries that
// reference it are left in place and ignored from then on.
func (s *Server) handleDeleteItem(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.storer.Delete(ctx, c.Params("id")); err != nil {
		return s.writeError(c, err)
	}
	if s.config.Index != nil {
		s.config.Index.MarkDirty(1)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleIndexRebuild rebuilds the similarity index synchronously.
func (s *Server) handleIndexRebuild(c *fiber.Ctx) error {
	if s.config.Index == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, KindUnavailable, "similarity index is not configured")
	}

	stats, err := s.config.Index.Rebuild(c.UserContext())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(stats)
}

// handleIndexStats describes the active similarity index.
func (s *Server) handleIndexStats(c *fiber.Ctx) error {
	if s.config.Index == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, KindUnavailable, "similarity index is not configured")
	}
	return c.JSON(s.config.Index.Stats())
}
