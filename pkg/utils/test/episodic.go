package testutils

import (
	"context"

	"github.com/quillworks/quill/pkg/memory"
)

// MockEpisodicTier is an in-process episodic tier backed by a map, with a
// configurable ranked result set for similarity searches.
type MockEpisodicTier struct {
	// Items holds stored episodes by key.
	Items map[string]memory.Item

	// Searched is returned (after metadata filtering) by SearchSimilar.
	Searched []memory.ScoredItem

	// Fail makes every operation return memory.ErrUnavailable.
	Fail bool
}

// NewMockEpisodicTier creates an empty mock episodic tier.
func NewMockEpisodicTier() *MockEpisodicTier {
	return &MockEpisodicTier{Items: make(map[string]memory.Item)}
}

func (m *MockEpisodicTier) Store(_ context.Context, item memory.Item) error {
	if m.Fail {
		return memory.ErrUnavailable
	}
	m.Items[item.Key] = item
	return nil
}

func (m *MockEpisodicTier) Retrieve(_ context.Context, key string) (*memory.Item, error) {
	if m.Fail {
		return nil, memory.ErrUnavailable
	}
	item, ok := m.Items[key]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &item, nil
}

func (m *MockEpisodicTier) Update(_ context.Context, key string, value map[string]any, metadata map[string]string) error {
	if m.Fail {
		return memory.ErrUnavailable
	}
	item, ok := m.Items[key]
	if !ok {
		return memory.ErrNotFound
	}
	item.Value = value
	item.Metadata = metadata
	m.Items[key] = item
	return nil
}

func (m *MockEpisodicTier) Delete(_ context.Context, key string) error {
	if m.Fail {
		return memory.ErrUnavailable
	}
	delete(m.Items, key)
	return nil
}

func (m *MockEpisodicTier) Exists(_ context.Context, key string) (bool, error) {
	if m.Fail {
		return false, memory.ErrUnavailable
	}
	_, ok := m.Items[key]
	return ok, nil
}

func (m *MockEpisodicTier) Close() error { return nil }

func (m *MockEpisodicTier) SearchSimilar(_ context.Context, _ string, n int, filter map[string]string) ([]memory.ScoredItem, error) {
	if m.Fail {
		return nil, memory.ErrUnavailable
	}

	out := make([]memory.ScoredItem, 0, len(m.Searched))
	for _, s := range m.Searched {
		if memory.MatchesMetadata(s.Item, filter) {
			out = append(out, s)
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MockEpisodicTier) GetByMetadata(_ context.Context, filter map[string]string, limit int) ([]memory.Item, error) {
	if m.Fail {
		return nil, memory.ErrUnavailable
	}

	out := make([]memory.Item, 0, len(m.Items))
	for _, item := range m.Items {
		if memory.MatchesMetadata(item, filter) {
			out = append(out, item)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
