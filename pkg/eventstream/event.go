package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/quill/pkg/tokens"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStageCompleted is emitted after a pipeline stage completes.
	EventTypeStageCompleted = "quill.stage.completed"
)

// StageCompletedEvent is a transport-neutral event payload for a completed
// pipeline stage.
type StageCompletedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	ProposalID    string        `json:"proposal_id"`
	SessionID     string        `json:"session_id,omitempty"`
	Stage         string        `json:"stage"`
	DurationMs    int64         `json:"duration_ms"`
	Usage         *tokens.Usage `json:"usage,omitempty"`
}

// NewStageCompletedEvent builds the event envelope for a completed stage.
func NewStageCompletedEvent(proposalID, sessionID, stage string, duration time.Duration, usage *tokens.Usage) *StageCompletedEvent {
	return &StageCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeStageCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		ProposalID:    proposalID,
		SessionID:     sessionID,
		Stage:         stage,
		DurationMs:    duration.Milliseconds(),
		Usage:         usage,
	}
}
