package inmemory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/store"
)

// Driver implements store.Driver using an in-memory map.
type Driver struct {
	mu sync.RWMutex

	// proposals maps proposal ID to record
	proposals map[string]*store.Proposal
}

// NewDriver creates a new in-memory proposal store.
func NewDriver() *Driver {
	return &Driver{
		proposals: make(map[string]*store.Proposal),
	}
}

// Put stores a proposal, replacing any existing record with the same ID.
func (s *Driver) Put(_ context.Context, p *store.Proposal) error {
	if p == nil {
		return errors.New("cannot store nil proposal")
	}
	if p.ID == "" {
		return errors.New("proposal ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	record := copyProposal(p)
	record.UpdatedAt = now

	if existing, ok := s.proposals[p.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}

	s.proposals[p.ID] = record
	return nil
}

// Get retrieves a proposal by ID.
func (s *Driver) Get(_ context.Context, id string) (*store.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, store.NotFoundError{ID: id}
	}

	return copyProposal(p), nil
}

// List returns all proposals ordered by creation time, oldest first.
func (s *Driver) List(_ context.Context) ([]*store.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proposals := make([]*store.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		proposals = append(proposals, copyProposal(p))
	}

	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].CreatedAt.Equal(proposals[j].CreatedAt) {
			return proposals[i].ID < proposals[j].ID
		}
		return proposals[i].CreatedAt.Before(proposals[j].CreatedAt)
	})

	return proposals, nil
}

// SetStageOutput records the JSON output of one completed stage.
func (s *Driver) SetStageOutput(_ context.Context, id, stage string, output json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return store.NotFoundError{ID: id}
	}

	if p.StageOutputs == nil {
		p.StageOutputs = make(map[string]json.RawMessage)
	}
	p.StageOutputs[stage] = append(json.RawMessage(nil), output...)
	p.UpdatedAt = time.Now().UTC()

	return nil
}

// Delete removes a proposal. Deleting an absent ID is a no-op.
func (s *Driver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.proposals, id)
	return nil
}

// Count returns the number of proposals in the in-memory store.
func (s *Driver) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proposals)
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}

func copyProposal(p *store.Proposal) *store.Proposal {
	out := *p
	if p.StageOutputs != nil {
		out.StageOutputs = make(map[string]json.RawMessage, len(p.StageOutputs))
		for stage, output := range p.StageOutputs {
			out.StageOutputs[stage] = append(json.RawMessage(nil), output...)
		}
	}
	return &out
}

// Ensure Driver implements store.Driver
var _ store.Driver = (*Driver)(nil)
