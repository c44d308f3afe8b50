package nop

import (
	"context"

	"github.com/quillworks/quill/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishStageCompleted validates input and otherwise does nothing.
func (p *Publisher) PublishStageCompleted(_ context.Context, event *eventstream.StageCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilStageEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
