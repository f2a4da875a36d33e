package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/polar/pkg/eventstream"
)

// ErrMockPublish is returned by MockPublisher when FailPublish is set.
var ErrMockPublish = errors.New("mock publish failure")

// MockPublisher is a test eventstream publisher that records served events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.FeedServedEvent

	// FailPublish causes PublishServed to return ErrMockPublish.
	FailPublish bool

	closed bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishServed(_ context.Context, event *eventstream.FeedServedEvent) error {
	if event == nil {
		return eventstream.ErrNilServedEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPublish {
		return ErrMockPublish
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (m *MockPublisher) Events() []*eventstream.FeedServedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.FeedServedEvent(nil), m.events...)
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
