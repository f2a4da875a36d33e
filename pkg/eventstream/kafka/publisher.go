// Package kafka publishes feed events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/polar/pkg/eventstream"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds each write. Defaults to 10s.
	WriteTimeout time.Duration
}

// Publisher writes FeedServedEvents as JSON, keyed by user id so that a
// user's events stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithWriter replaces the underlying writer.
func WithWriter(w MessageWriter) Option {
	return func(p *Publisher) {
		p.writer = w
	}
}

// NewPublisher creates a Kafka publisher for the configured brokers and topic.
func NewPublisher(c Config, logger *slog.Logger, opts ...Option) (*Publisher, error) {
	if c.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	p := &Publisher{topic: c.Topic, logger: logger}
	for _, opt := range opts {
		opt(p)
	}

	if p.writer == nil {
		if len(c.Brokers) == 0 {
			return nil, errors.New("at least one kafka broker is required")
		}
		timeout := c.WriteTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(c.Brokers...),
			Topic:        c.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: timeout,
		}
	}

	logger.Info("kafka eventstream publisher initialized",
		"brokers", c.Brokers,
		"topic", c.Topic,
	)

	return p, nil
}

// PublishServed writes the event to the topic.
func (p *Publisher) PublishServed(ctx context.Context, event *eventstream.FeedServedEvent) error {
	if event == nil {
		return eventstream.ErrNilServedEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling served event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to kafka topic %s: %w", p.topic, err)
	}

	p.logger.Debug("published served event",
		"event_id", event.EventID,
		"user_id", event.UserID,
	)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
