// Package ingest provides an asynchronous worker pool that embeds and stores
// catalog items.
//
// The pool decouples catalog writes from the HTTP hot path: handlers enqueue
// a Job and return immediately while workers generate missing embeddings and
// upsert the item.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/polar/pkg/embeddings"
	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/metrics"
	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/vector"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 2 * time.Minute

	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("ingest pool closed")

	// ErrInvalidJob is returned for jobs that cannot be stored.
	ErrInvalidJob = errors.New("invalid ingest job")
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Item storage.Item

	// Transcript is embedded when Item carries no embedding.
	Transcript string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Items is the catalog the pool writes to.
	Items storage.ItemStore

	// Embedder generates embeddings for jobs that carry a transcript but no
	// embedding. Optional.
	Embedder embeddings.Embedder

	// Dimensions, when non-zero, is the embedding length every stored item
	// must have. Items with any other length are rejected with ErrInvalidJob.
	Dimensions uint

	// OnStored is called with the item id after every successful upsert.
	OnStored func(itemID string)

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds one job including its embedding call.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Stats counts job outcomes since the pool started.
type Stats struct {
	Stored  uint64 `json:"stored"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Pool processes ingest jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed against concurrent sends on queue.
	mu     sync.RWMutex
	closed bool

	stored  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Items == nil {
		return nil, errors.New("ingest pool requires an item store")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(job, "pool closed")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "item_id", job.Item.ID)
		return true
	default:
		p.drop(job, "queue full")
		return false
	}
}

// Submit blocks until the job is queued or ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns job outcome counts.
func (p *Pool) Stats() Stats {
	return Stats{
		Stored:  p.stored.Load(),
		Failed:  p.failed.Load(),
		Dropped: p.dropped.Load(),
	}
}

func (p *Pool) drop(job Job, reason string) {
	p.dropped.Add(1)
	metrics.IngestJobs.WithLabelValues("dropped").Inc()
	p.logger.Error("job not queued, job dropped", "item_id", job.Item.ID, "reason", reason)
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
		err := p.Process(ctx, job)
		cancel()

		if err != nil {
			p.failed.Add(1)
			metrics.IngestJobs.WithLabelValues("error").Inc()
			p.logger.Error("ingest job failed", "item_id", job.Item.ID, "error", err)
			continue
		}
		p.stored.Add(1)
		metrics.IngestJobs.WithLabelValues("ok").Inc()
	}

	p.logger.Debug("ingest worker stopped", "worker_id", id)
}

// Process embeds the job's transcript when needed and upserts the item.
// Items that end up without an embedding are still stored; they stay out of
// feeds and the similarity index until embedded.
func (p *Pool) Process(ctx context.Context, job Job) error {
	if err := p.Validate(job); err != nil {
		return err
	}
	item := job.Item

	if !item.Embedded() && job.Transcript != "" {
		if p.config.Embedder == nil {
			p.logger.Debug("no embedder configured, storing item without embedding", "item_id", item.ID)
		} else {
			embedding, err := p.config.Embedder.Embed(ctx, job.Transcript)
			if err != nil {
				return fmt.Errorf("embedding transcript for %s: %w", item.ID, err)
			}
			item.Embedding = embedding
			p.logger.Debug("embedded transcript", "item_id", item.ID, "embedding_dim", len(embedding))
			if err := p.checkDimensions(&item); err != nil {
				return err
			}
		}
	}

	if err := p.config.Items.Upsert(ctx, &item); err != nil {
		return fmt.Errorf("storing item %s: %w", item.ID, err)
	}

	if p.config.OnStored != nil {
		p.config.OnStored(item.ID)
	}

	p.logger.Info("item stored",
		"item_id", item.ID,
		"bias_score", item.BiasScore,
		"embedded", item.Embedded(),
	)
	return nil
}

// Validate reports whether job can be stored as submitted: it needs an item
// id and, when the pool pins Dimensions, an embedding of that length or none.
func (p *Pool) Validate(job Job) error {
	if job.Item.ID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidJob)
	}
	return p.checkDimensions(&job.Item)
}

func (p *Pool) checkDimensions(item *storage.Item) error {
	want := int(p.config.Dimensions)
	if want == 0 || !item.Embedded() || len(item.Embedding) == want {
		return nil
	}
	return fmt.Errorf("%w: %w: item %s has %d dimensions, expected %d",
		ErrInvalidJob, vector.ErrDimensionMismatch, item.ID, len(item.Embedding), want)
}
