package eventstream

import "context"

// Publisher publishes feed events to an event stream backend.
type Publisher interface {
	PublishServed(ctx context.Context, event *FeedServedEvent) error
	Close() error
}
