// Package inmemory provides a map-backed storage driver for tests and
// single-process deployments.
package inmemory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/polar/pkg/storage"
)

// Option configures a Driver.
type Option func(*Driver)

// WithCommitHook installs a CommitHook.
func WithCommitHook(h storage.CommitHook) Option {
	return func(d *Driver) {
		d.commitHook = h
	}
}

// itemEntry pairs an item with its insertion sequence number.
type itemEntry struct {
	item *storage.Item
	seq  int64
}

// visitedSet is one user's visited items keyed by item id, valued by serve
// sequence number.
type visitedSet map[string]int64

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below. Commit holds the write lock for its whole
	// duration so the user write and the visited write are observed together.
	mu sync.RWMutex

	items   map[string]*itemEntry
	users   map[string]*storage.User
	visited map[string]visitedSet

	itemSeq  int64
	visitSeq int64

	commitHook storage.CommitHook
}

var _ storage.Sampler = (*Driver)(nil)

// NewDriver creates a new in-memory storer.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		items:   make(map[string]*itemEntry),
		users:   make(map[string]*storage.User),
		visited: make(map[string]visitedSet),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get retrieves an item by id.
func (d *Driver) Get(_ context.Context, id string) (*storage.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.items[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return cloneItem(e.item), nil
}

// Count returns the number of embedded items.
func (d *Driver) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, e := range d.items {
		if e.item.Embedded() {
			n++
		}
	}
	return n, nil
}

// ListUnvisited returns the embedded items the user has not been served.
func (d *Driver) ListUnvisited(_ context.Context, userID string) ([]*storage.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := d.visited[userID]
	out := make([]*storage.Item, 0, len(d.items))
	for _, e := range d.sortedItems() {
		if !e.item.Embedded() {
			continue
		}
		if _, ok := seen[e.item.ID]; ok {
			continue
		}
		out = append(out, cloneItem(e.item))
	}
	return out, nil
}

// SampleUnvisited draws up to n embedded items the user has not been served,
// uniformly without replacement, in random order. It reservoir-samples the
// catalog map in one pass.
func (d *Driver) SampleUnvisited(_ context.Context, userID string, n int) ([]*storage.Item, error) {
	if n <= 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := d.visited[userID]
	reservoir := make([]*storage.Item, 0, min(n, len(d.items)))
	eligible := 0
	for _, e := range d.items {
		if !e.item.Embedded() {
			continue
		}
		if _, ok := seen[e.item.ID]; ok {
			continue
		}
		eligible++
		if len(reservoir) < n {
			reservoir = append(reservoir, e.item)
			continue
		}
		if j := rand.IntN(eligible); j < n {
			reservoir[j] = e.item
		}
	}

	// Reservoir slots fill in map order; shuffle so drawn order is uniform too.
	rand.Shuffle(len(reservoir), func(i, j int) {
		reservoir[i], reservoir[j] = reservoir[j], reservoir[i]
	})

	out := make([]*storage.Item, len(reservoir))
	for i, it := range reservoir {
		out[i] = cloneItem(it)
	}
	return out, nil
}

// Embedded returns every embedded item in insertion order.
func (d *Driver) Embedded(_ context.Context) ([]*storage.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.Item, 0, len(d.items))
	for _, e := range d.sortedItems() {
		if e.item.Embedded() {
			out = append(out, cloneItem(e.item))
		}
	}
	return out, nil
}

// Upsert inserts or replaces an item. Replacing keeps the original
// insertion position.
func (d *Driver) Upsert(_ context.Context, item *storage.Item) error {
	if item == nil {
		return errors.New("cannot store nil item")
	}
	if item.ID == "" {
		return errors.New("cannot store item without id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	stored := cloneItem(item)
	if e, ok := d.items[item.ID]; ok {
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = e.item.CreatedAt
		}
		e.item = stored
		return nil
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	d.itemSeq++
	d.items[item.ID] = &itemEntry{item: stored, seq: d.itemSeq}
	return nil
}

// Delete removes an item.
func (d *Driver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.items[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	delete(d.items, id)
	return nil
}

// GetUser returns the user's bias state, zero-valued for unknown users.
func (d *Driver) GetUser(_ context.Context, id string) (*storage.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if u, ok := d.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return &storage.User{ID: id}, nil
}

// PutUser overwrites the user's bias state.
func (d *Driver) PutUser(_ context.Context, user *storage.User) error {
	if user == nil || user.ID == "" {
		return errors.New("cannot store user without id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *user
	d.users[user.ID] = &cp
	return nil
}

// Commit applies a feed selection atomically.
func (d *Driver) Commit(_ context.Context, c storage.Commit) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, existed := d.users[c.UserID]
	current := 0
	if existed {
		current = prev.PoleCount
	}
	if current != c.ExpectedPoleCount {
		return fmt.Errorf("%w: user %s pole count is %d, expected %d",
			storage.ErrConflict, c.UserID, current, c.ExpectedPoleCount)
	}
	if _, ok := d.items[c.ItemID]; !ok {
		return fmt.Errorf("%w: item %s no longer in catalog", storage.ErrConflict, c.ItemID)
	}
	if _, ok := d.visited[c.UserID][c.ItemID]; ok {
		return fmt.Errorf("%w: item %s already visited by %s", storage.ErrConflict, c.ItemID, c.UserID)
	}

	d.users[c.UserID] = &storage.User{
		ID:        c.UserID,
		BiasScore: c.NewBias,
		PoleCount: c.NewPoleCount,
	}

	if d.commitHook != nil {
		if err := d.commitHook(c); err != nil {
			if existed {
				d.users[c.UserID] = prev
			} else {
				delete(d.users, c.UserID)
			}
			return fmt.Errorf("committing selection: %w", err)
		}
	}

	d.markLocked(c.UserID, c.ItemID)
	return nil
}

// HasVisited reports whether the item was served to the user.
func (d *Driver) HasVisited(_ context.Context, userID, itemID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.visited[userID][itemID]
	return ok, nil
}

// MarkVisited records a served item. Unknown item ids are ignored.
func (d *Driver) MarkVisited(_ context.Context, userID, itemID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.items[itemID]; !ok {
		return nil
	}
	d.markLocked(userID, itemID)
	return nil
}

// UnvisitedCount walks only the user's own visited set.
func (d *Driver) UnvisitedCount(_ context.Context, userID string, totalItems int) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	visited := 0
	for itemID := range d.visited[userID] {
		if e, ok := d.items[itemID]; ok && e.item.Embedded() {
			visited++
		}
	}
	return max(totalItems-visited, 0), nil
}

// VisitedItems returns the user's live visited items in serve order.
func (d *Driver) VisitedItems(_ context.Context, userID string) ([]*storage.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	type served struct {
		item *storage.Item
		seq  int64
	}
	var list []served
	for itemID, seq := range d.visited[userID] {
		if e, ok := d.items[itemID]; ok {
			list = append(list, served{item: e.item, seq: seq})
		}
	}
	slices.SortFunc(list, func(a, b served) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]*storage.Item, len(list))
	for i, s := range list {
		out[i] = cloneItem(s.item)
	}
	return out, nil
}

// Reset clears the user's visited set.
func (d *Driver) Reset(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.visited, userID)
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) markLocked(userID, itemID string) {
	set, ok := d.visited[userID]
	if !ok {
		set = make(visitedSet)
		d.visited[userID] = set
	}
	if _, ok := set[itemID]; ok {
		return
	}
	d.visitSeq++
	set[itemID] = d.visitSeq
}

// sortedItems returns item entries in insertion order. Callers hold mu.
func (d *Driver) sortedItems() []*itemEntry {
	entries := make([]*itemEntry, 0, len(d.items))
	for _, e := range d.items {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *itemEntry) int { return cmp.Compare(a.seq, b.seq) })
	return entries
}

func cloneItem(it *storage.Item) *storage.Item {
	cp := *it
	cp.Embedding = slices.Clone(it.Embedding)
	return &cp
}
