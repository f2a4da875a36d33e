// Package feed serves each user one unvisited item at a time, choosing the
// candidate that moves the user's running bias closest to neutral.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/papercomputeco/polar/pkg/bias"
	"github.com/papercomputeco/polar/pkg/eventstream"
	"github.com/papercomputeco/polar/pkg/eventstream/nop"
	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/metrics"
	"github.com/papercomputeco/polar/pkg/storage"
)

const (
	// DefaultPoolSize is the number of candidates drawn per selection.
	DefaultPoolSize = 10

	publishTimeout = 5 * time.Second
)

// Config is the configuration for a Selector.
type Config struct {
	Items   storage.ItemStore
	Users   storage.UserStore
	Visited storage.VisitedTracker

	// Publisher receives a served event after every committed selection.
	// Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// PoolSize defaults to DefaultPoolSize when zero.
	PoolSize int

	// Rand drives the fallback candidate shuffle. Defaults to a randomly
	// seeded PCG source.
	Rand *rand.Rand
}

// Selection is the outcome of a committed SelectNext.
type Selection struct {
	Item          *storage.Item
	User          *storage.User
	PredictedBias float64
	PoolSize      int
	State         State
}

// UserStats summarizes a user's feed position.
type UserStats struct {
	User      *storage.User
	Visited   int
	Unvisited int
}

// Selector picks the next item for a user.
type Selector struct {
	items     storage.ItemStore
	users     storage.UserStore
	visited   storage.VisitedTracker
	publisher eventstream.Publisher
	logger    *slog.Logger
	poolSize  int

	randMu sync.Mutex
	rand   *rand.Rand

	locks *userLocks
}

// NewSelector creates a Selector.
func NewSelector(c Config) (*Selector, error) {
	if c.Items == nil || c.Users == nil || c.Visited == nil {
		return nil, errors.New("feed selector requires item, user and visited stores")
	}
	if c.PoolSize < 0 {
		return nil, fmt.Errorf("%w: pool size %d is negative", ErrInvalidArgument, c.PoolSize)
	}

	s := &Selector{
		items:     c.Items,
		users:     c.Users,
		visited:   c.Visited,
		publisher: c.Publisher,
		logger:    c.Logger,
		poolSize:  c.PoolSize,
		rand:      c.Rand,
		locks:     newUserLocks(),
	}
	if s.publisher == nil {
		s.publisher = nop.NewPublisher()
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.poolSize == 0 {
		s.poolSize = DefaultPoolSize
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s, nil
}

// SelectNext serves the user the drawn candidate whose predicted bias is
// closest to zero and commits the visit and the new bias together.
func (s *Selector) SelectNext(ctx context.Context, userID string) (*Selection, error) {
	start := time.Now()
	sel, err := s.selectNext(ctx, userID)
	metrics.FeedSelectionLatency.Observe(time.Since(start).Seconds())
	metrics.FeedSelections.WithLabelValues(outcome(err)).Inc()
	return sel, err
}

func (s *Selector) selectNext(ctx context.Context, userID string) (*Selection, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("acquiring user lock: %w", err)
	}
	defer release()

	log := s.logger.With("user_id", userID)
	state := AwaitingSample

	total, err := s.items.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}
	unvisited, err := s.visited.UnvisitedCount(ctx, userID, total)
	if err != nil {
		return nil, fmt.Errorf("counting unvisited items: %w", err)
	}
	if unvisited == 0 {
		log.Debug("feed exhausted", "state", Exhausted, "total_items", total)
		return nil, ErrExhausted
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	pool, err := s.draw(ctx, userID, min(s.poolSize, unvisited))
	if err != nil {
		return nil, fmt.Errorf("drawing candidates: %w", err)
	}
	state = CandidatesDrawn
	metrics.FeedPoolSize.Observe(float64(len(pool)))
	log.Debug("candidates drawn", "state", state, "pool_size", len(pool), "unvisited", unvisited)

	candidates := make([]bias.Candidate, len(pool))
	byID := make(map[string]*storage.Item, len(pool))
	for i, item := range pool {
		candidates[i] = bias.Candidate{
			ItemID:        item.ID,
			ItemBias:      item.BiasScore,
			PredictedBias: bias.UpdateBias(user.BiasScore, item.BiasScore, user.PoleCount),
		}
		byID[item.ID] = item
	}

	chosen, err := bias.SelectClosestToNeutral(candidates)
	if err != nil {
		log.Debug("no candidates drawn", "state", NoCandidates, "unvisited", unvisited)
		return nil, err
	}
	state = Evaluated
	log.Debug("candidate chosen",
		"state", state,
		"item_id", chosen.ItemID,
		"predicted_bias", chosen.PredictedBias,
		"pool_size", len(pool),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	commit := storage.Commit{
		UserID:            userID,
		ItemID:            chosen.ItemID,
		NewBias:           chosen.PredictedBias,
		NewPoleCount:      user.PoleCount + 1,
		ExpectedPoleCount: user.PoleCount,
	}
	if err := s.users.Commit(ctx, commit); err != nil {
		return nil, fmt.Errorf("committing selection: %w", err)
	}
	state = Selected

	updated := &storage.User{ID: userID, BiasScore: commit.NewBias, PoleCount: commit.NewPoleCount}
	s.publish(ctx, log, eventstream.NewFeedServedEvent(
		userID, chosen.ItemID, chosen.ItemBias, updated.BiasScore, updated.PoleCount, len(pool),
	))

	log.Info("item served",
		"item_id", chosen.ItemID,
		"user_bias", updated.BiasScore,
		"pole_count", updated.PoleCount,
	)

	return &Selection{
		Item:          byID[chosen.ItemID],
		User:          updated,
		PredictedBias: chosen.PredictedBias,
		PoolSize:      len(pool),
		State:         state,
	}, nil
}

// draw returns up to n unvisited items chosen uniformly without replacement.
func (s *Selector) draw(ctx context.Context, userID string, n int) ([]*storage.Item, error) {
	if sampler, ok := s.items.(storage.Sampler); ok {
		return sampler.SampleUnvisited(ctx, userID, n)
	}

	all, err := s.items.ListUnvisited(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.shuffle(all, n), nil
}

// shuffle moves n uniformly chosen elements to the front of items with a
// partial Fisher-Yates pass and returns them.
func (s *Selector) shuffle(items []*storage.Item, n int) []*storage.Item {
	n = min(n, len(items))

	s.randMu.Lock()
	defer s.randMu.Unlock()

	for i := range n {
		j := i + s.rand.IntN(len(items)-i)
		items[i], items[j] = items[j], items[i]
	}
	return items[:n]
}

// publish emits the served event. Failures are logged and counted; the
// commit already happened and stands.
func (s *Selector) publish(ctx context.Context, log *slog.Logger, event *eventstream.FeedServedEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.PublishServed(pubCtx, event); err != nil {
		metrics.EventPublishFailures.Inc()
		log.Warn("failed to publish served event",
			"event_id", event.EventID,
			"item_id", event.ItemID,
			"error", err,
		)
	}
}

// Reset forgets which items the user has been served. The user's bias is
// left as is.
func (s *Selector) Reset(ctx context.Context, userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	release, err := s.locks.acquire(ctx, userID)
	if err != nil {
		return fmt.Errorf("acquiring user lock: %w", err)
	}
	defer release()

	if err := s.visited.Reset(ctx, userID); err != nil {
		return fmt.Errorf("resetting visited items: %w", err)
	}
	s.logger.Info("visited items reset", "user_id", userID)
	return nil
}

// Recompute rebuilds the user's bias and pole count from the items they were
// served, in serve order, and stores the result.
func (s *Selector) Recompute(ctx context.Context, userID string) (*storage.User, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("acquiring user lock: %w", err)
	}
	defer release()

	served, err := s.visited.VisitedItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing visited items: %w", err)
	}

	biases := make([]float64, len(served))
	for i, item := range served {
		biases[i] = item.BiasScore
	}
	current, poles := bias.Replay(biases)

	user := &storage.User{ID: userID, BiasScore: current, PoleCount: poles}
	if err := s.users.PutUser(ctx, user); err != nil {
		return nil, fmt.Errorf("storing user: %w", err)
	}

	s.logger.Info("user bias recomputed", "user_id", userID, "user_bias", current, "pole_count", poles)
	return user, nil
}

// Stats reports the user's bias state with visited and unvisited counts.
func (s *Selector) Stats(ctx context.Context, userID string) (*UserStats, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	total, err := s.items.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}
	unvisited, err := s.visited.UnvisitedCount(ctx, userID, total)
	if err != nil {
		return nil, fmt.Errorf("counting unvisited items: %w", err)
	}

	return &UserStats{
		User:      user,
		Visited:   total - unvisited,
		Unvisited: unvisited,
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSelected
	case errors.Is(err, ErrExhausted):
		return metrics.OutcomeExhausted
	case errors.Is(err, ErrNoCandidates):
		return metrics.OutcomeNoCandidates
	case errors.Is(err, storage.ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
