package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeFeedServed is emitted after a feed selection is committed.
	EventTypeFeedServed = "polar.feed.served"
)

// FeedServedEvent is a transport-neutral event payload for a committed feed
// selection.
type FeedServedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	UserID    string  `json:"user_id"`
	ItemID    string  `json:"item_id"`
	ItemBias  float64 `json:"item_bias"`
	UserBias  float64 `json:"user_bias"`
	PoleCount int     `json:"pole_count"`
	PoolSize  int     `json:"pool_size"`
}

// NewFeedServedEvent stamps a new event with a fresh id and the current time.
func NewFeedServedEvent(userID, itemID string, itemBias, userBias float64, poleCount, poolSize int) *FeedServedEvent {
	return &FeedServedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeFeedServed,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		UserID:        userID,
		ItemID:        itemID,
		ItemBias:      itemBias,
		UserBias:      userBias,
		PoleCount:     poleCount,
		PoolSize:      poolSize,
	}
}
