package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/polar/pkg/storage"
)

// Server is the API server for the Polar feed and similarity system
type Server struct {
	config Config
	storer storage.Driver
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The storer is injected to allow sharing with the feed selector, the index
// manager and the ingest pool.
func NewServer(config Config, storer storage.Driver, logger *slog.Logger) (*Server, error) {
	if config.Selector == nil {
		return nil, errors.New("api server requires a feed selector")
	}
	if storer == nil {
		return nil, errors.New("api server requires a storage driver")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	// Route params are percent-decoded and copied; ids outlive the request
	// when handed to the ingest pool.
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		UnescapePath:          true,
		Immutable:             true,
	})

	s := &Server{
		config: config,
		storer: storer,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/v1")
	v1.Get("/feed/next", s.handleFeedNext)
	v1.Post("/feed/reset", s.handleFeedReset)
	v1.Get("/users/:id", s.handleUserStats)
	v1.Post("/users/:id/recompute", s.handleUserRecompute)
	v1.Get("/similar/:id", s.handleSimilar)
	v1.Get("/search", s.handleSearchEndpoint)
	v1.Get("/items/:id", s.handleGetItem)
	v1.Put("/items/:id", s.handlePutItem)
	v1.Delete("/items/:id", s.handleDeleteItem)
	v1.Post("/index/rebuild", s.handleIndexRebuild)
	v1.Get("/index/stats", s.handleIndexStats)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// requestContext derives the per-request deadline.
func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.config.RequestTimeout)
}
