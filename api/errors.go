package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/polar/pkg/embeddings"
	"github.com/papercomputeco/polar/pkg/feed"
	"github.com/papercomputeco/polar/pkg/ingest"
	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/vector"
)

// Error kinds returned in ErrorResponse.Error.
const (
	KindNotFound          = "not_found"
	KindNoUnvisited       = "no_unvisited"
	KindNoCandidates      = "no_candidates"
	KindNoOtherItems      = "no_other_items"
	KindDimensionMismatch = "dimension_mismatch"
	KindInvalidArgument   = "invalid_argument"
	KindConflict          = "conflict"
	KindNotBuilt          = "index_not_built"
	KindUnavailable       = "unavailable"
	KindTimeout           = "timeout"
	KindInternal          = "internal"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound, KindNotFound
	case errors.Is(err, feed.ErrExhausted):
		return fiber.StatusForbidden, KindNoUnvisited
	case errors.Is(err, feed.ErrNoCandidates):
		return fiber.StatusServiceUnavailable, KindNoCandidates
	case errors.Is(err, vector.ErrNoOtherItems):
		return fiber.StatusNotFound, KindNoOtherItems
	case errors.Is(err, vector.ErrDimensionMismatch):
		return fiber.StatusBadRequest, KindDimensionMismatch
	case errors.Is(err, feed.ErrInvalidArgument), errors.Is(err, vector.ErrInvalidArgument),
		errors.Is(err, ingest.ErrInvalidJob):
		return fiber.StatusBadRequest, KindInvalidArgument
	case errors.Is(err, storage.ErrConflict):
		return fiber.StatusConflict, KindConflict
	case errors.Is(err, vector.ErrNotBuilt):
		return fiber.StatusServiceUnavailable, KindNotBuilt
	case errors.Is(err, embeddings.ErrEmbedding):
		return fiber.StatusServiceUnavailable, KindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, KindTimeout
	default:
		return fiber.StatusInternalServerError, KindInternal
	}
}

// writeError maps err onto a status code and error kind.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status, kind := classify(err)
	if status >= fiber.StatusInternalServerError && kind != KindNoCandidates {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: kind, Message: err.Error()})
}

func errorJSON(c *fiber.Ctx, status int, kind, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: kind, Message: message})
}
