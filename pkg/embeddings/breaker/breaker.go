// Package breaker guards an embeddings.Embedder with a circuit breaker so a
// failing embedding backend is not hammered by ingestion and search.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/papercomputeco/polar/pkg/embeddings"
	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/metrics"
)

const (
	DefaultName             = "embedder"
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 30 * time.Second
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("embedder circuit breaker open")

// Config holds circuit breaker settings.
type Config struct {
	Name string

	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before letting a trial
	// request through.
	OpenTimeout time.Duration

	Logger *slog.Logger
}

// Embedder wraps another Embedder with a circuit breaker.
type Embedder struct {
	inner embeddings.Embedder
	cb    *gobreaker.CircuitBreaker[[]float32]
}

// New wraps inner.
func New(inner embeddings.Embedder, c Config) *Embedder {
	name := c.Name
	if name == "" {
		name = DefaultName
	}
	threshold := c.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	timeout := c.OpenTimeout
	if timeout == 0 {
		timeout = DefaultOpenTimeout
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	metrics.EmbedderBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller cancellations say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("embedder circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if to == gobreaker.StateOpen {
				metrics.EmbedderBreakerState.Set(1)
			} else {
				metrics.EmbedderBreakerState.Set(0)
			}
		},
	})

	return &Embedder{inner: inner, cb: cb}
}

// Embed calls the wrapped embedder unless the breaker is open.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := e.cb.Execute(func() ([]float32, error) {
		return e.inner.Embed(ctx, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrOpen, embeddings.ErrEmbedding, err)
	}
	return emb, err
}

// State returns the breaker state as "closed", "half-open" or "open".
func (e *Embedder) State() string {
	return e.cb.State().String()
}

// Close closes the wrapped embedder.
func (e *Embedder) Close() error {
	return e.inner.Close()
}

var _ embeddings.Embedder = (*Embedder)(nil)
