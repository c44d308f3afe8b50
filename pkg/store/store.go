// Package store persists proposal records across pipeline runs.
//
// A Driver holds one record per proposal together with the JSON output of
// every completed stage, so a run can resume at any stage boundary. Drivers
// are pluggable: in-memory for tests, SQLite for local use, PostgreSQL for
// shared deployments.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Proposal is one tracked proposal-request run.
type Proposal struct {
	// ID uniquely identifies the proposal.
	ID string `json:"id"`

	// SourceText is the raw request document text the run started from.
	SourceText string `json:"source_text"`

	// StageOutputs maps a completed stage name to its JSON output.
	StageOutputs map[string]json.RawMessage `json:"stage_outputs"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Output returns the stored output of a stage and whether it is present.
func (p *Proposal) Output(stage string) (json.RawMessage, bool) {
	out, ok := p.StageOutputs[stage]
	return out, ok
}

// Driver defines the interface for persisting and retrieving proposal
// records in a storage backend.
type Driver interface {
	// Put stores a proposal, replacing any existing record with the same ID.
	Put(ctx context.Context, p *Proposal) error

	// Get retrieves a proposal by ID.
	Get(ctx context.Context, id string) (*Proposal, error)

	// List returns all proposals ordered by creation time, oldest first.
	List(ctx context.Context) ([]*Proposal, error)

	// SetStageOutput records the JSON output of one completed stage. The
	// write is atomic with respect to concurrent stage completions on the
	// same proposal.
	SetStageOutput(ctx context.Context, id, stage string, output json.RawMessage) error

	// Delete removes a proposal. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}

// NotFoundError is returned when a proposal doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "proposal not found"
	}

	return "proposal not found: " + e.ID
}
