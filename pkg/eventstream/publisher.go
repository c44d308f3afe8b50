package eventstream

import "context"

// Publisher publishes stage events to an event stream backend.
type Publisher interface {
	PublishStageCompleted(ctx context.Context, event *StageCompletedEvent) error
	Close() error
}
