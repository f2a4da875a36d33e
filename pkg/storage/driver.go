// Package storage defines the catalog, user and visited-set persistence
// boundary used by feed selection and similarity retrieval.
package storage

import (
	"context"
	"time"
)

// Item is a catalog entry. Items are immutable by id; only their metadata
// and embedding may be replaced through Upsert.
type Item struct {
	ID string `json:"item_id"`

	// BiasScore is the pre-computed position of the item on the bias axis.
	// Absent scores are stored as 0.0.
	BiasScore float64 `json:"bias_score"`

	// Embedding is the item's vector. An empty embedding marks the item as
	// not yet embedded; such items are invisible to feed pools and to the
	// similarity index.
	Embedding []float32 `json:"embedding,omitempty"`

	Title      string    `json:"title,omitempty"`
	UploaderID string    `json:"uploader_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

// Embedded reports whether the item carries an embedding.
func (i *Item) Embedded() bool {
	return len(i.Embedding) > 0
}

// User is the per-user running bias state.
type User struct {
	ID        string  `json:"user_id"`
	BiasScore float64 `json:"bias_score"`
	PoleCount int     `json:"pole_count"`
}

// Commit is the single all-or-nothing write performed when a feed item is
// selected: the user's new bias, the incremented pole count and the visited
// mark for the served item.
type Commit struct {
	UserID string
	ItemID string

	NewBias      float64
	NewPoleCount int

	// ExpectedPoleCount is the pole count the selection was computed from.
	// Drivers reject the commit with ErrConflict when the stored count has
	// moved on.
	ExpectedPoleCount int
}

// CommitHook runs inside a driver's Commit after the user record has been
// written and before the visited mark is. A non-nil error aborts the commit
// and rolls the user write back. Drivers accept one for fault injection.
type CommitHook func(c Commit) error

// ItemStore is the read side of the catalog used by the feed and the index,
// plus the write side used by ingestion.
type ItemStore interface {
	// Get retrieves an item by id. Returns NotFoundError when absent.
	Get(ctx context.Context, id string) (*Item, error)

	// Count returns the number of embedded items in the catalog.
	Count(ctx context.Context) (int, error)

	// ListUnvisited returns every embedded item the user has not been served,
	// in catalog insertion order.
	ListUnvisited(ctx context.Context, userID string) ([]*Item, error)

	// Embedded returns every embedded item in catalog insertion order.
	Embedded(ctx context.Context) ([]*Item, error)

	// Upsert inserts an item or replaces its metadata and embedding.
	Upsert(ctx context.Context, item *Item) error

	// Delete removes an item. Visited entries that reference it are left in
	// place and ignored from then on.
	Delete(ctx context.Context, id string) error
}

// Sampler is implemented by item stores that can draw a uniform random
// sample of unvisited items natively, without listing them all.
type Sampler interface {
	SampleUnvisited(ctx context.Context, userID string, n int) ([]*Item, error)
}

// UserStore persists per-user bias state.
type UserStore interface {
	// GetUser returns the user's state. Unknown users read as
	// {BiasScore: 0, PoleCount: 0}.
	GetUser(ctx context.Context, id string) (*User, error)

	// PutUser overwrites the user's bias and pole count. Used by replay.
	PutUser(ctx context.Context, user *User) error

	// Commit atomically applies a feed selection.
	Commit(ctx context.Context, c Commit) error
}

// VisitedTracker is the durable per-user record of served items.
type VisitedTracker interface {
	// HasVisited reports whether the item was served to the user.
	HasVisited(ctx context.Context, userID, itemID string) (bool, error)

	// MarkVisited records a served item. It is idempotent and ignores
	// item ids that are not in the catalog.
	MarkVisited(ctx context.Context, userID, itemID string) error

	// UnvisitedCount returns totalItems minus the number of live embedded
	// catalog items the user has visited, clamped at zero.
	UnvisitedCount(ctx context.Context, userID string, totalItems int) (int, error)

	// VisitedItems returns the live items the user was served, in serve order.
	VisitedItems(ctx context.Context, userID string) ([]*Item, error)

	// Reset clears the user's visited set. The user's bias state is untouched.
	Reset(ctx context.Context, userID string) error
}

// Driver is a complete storage backend.
type Driver interface {
	ItemStore
	UserStore
	VisitedTracker

	// Close closes the store and releases any resources.
	Close() error
}
