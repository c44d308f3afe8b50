// Package kafka provides a Kafka-backed eventstream publisher.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/eventstream"
)

// DefaultTopic is the topic stage events are published to.
const DefaultTopic = "quill.stage.completed"

// Publisher implements eventstream.Publisher on top of a Kafka writer.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of broker addresses, e.g. ["localhost:9092"].
	Brokers []string

	// Topic defaults to DefaultTopic if empty.
	Topic string
}

// NewPublisher creates a Kafka-backed publisher. Messages are keyed by
// proposal ID so all events of one proposal land on the same partition.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("connected kafka event publisher",
		zap.Strings("brokers", c.Brokers),
		zap.String("topic", topic),
	)

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishStageCompleted writes one stage event to the topic.
func (p *Publisher) PublishStageCompleted(ctx context.Context, event *eventstream.StageCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilStageEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding stage event %s: %w", event.EventID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ProposalID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publishing stage event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published stage event",
		zap.String("event_id", event.EventID),
		zap.String("stage", event.Stage),
	)

	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Ensure Publisher implements eventstream.Publisher
var _ eventstream.Publisher = (*Publisher)(nil)
