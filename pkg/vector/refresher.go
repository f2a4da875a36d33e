package vector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/polar/pkg/logger"
)

// RefresherConfig is the configuration for a Refresher.
type RefresherConfig struct {
	Manager *Manager

	// Interval is how often the dirty count is checked.
	Interval time.Duration

	// Threshold is the number of catalog changes that triggers a rebuild.
	// Zero is treated as one.
	Threshold int64

	Logger *slog.Logger
}

// Refresher rebuilds the index in the background once enough catalog
// changes have accumulated.
type Refresher struct {
	manager   *Manager
	interval  time.Duration
	threshold int64
	logger    *slog.Logger

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRefresher creates a Refresher. Call Start to begin checking.
func NewRefresher(c RefresherConfig) *Refresher {
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Refresher{
		manager:   c.Manager,
		interval:  c.Interval,
		threshold: max(c.Threshold, 1),
		logger:    log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the check loop until ctx is done or Stop is called.
// A non-positive interval disables background rebuilds.
func (r *Refresher) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	if r.interval <= 0 {
		close(r.done)
		return
	}

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.Check(ctx)
			}
		}
	}()
}

// Check rebuilds once if the dirty count reached the threshold. It reports
// whether a rebuild succeeded.
func (r *Refresher) Check(ctx context.Context) bool {
	dirty := r.manager.Dirty()
	if dirty < r.threshold {
		return false
	}

	stats, err := r.manager.Rebuild(ctx)
	if err != nil {
		r.logger.Error("background index rebuild failed", "dirty_changes", dirty, "error", err)
		return false
	}
	r.logger.Debug("background index rebuild complete",
		"generation", stats.Generation,
		"size", stats.Size,
	)
	return true
}

// Stop ends the check loop and waits for it to exit.
func (r *Refresher) Stop() {
	if !r.started.Load() {
		return
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}
