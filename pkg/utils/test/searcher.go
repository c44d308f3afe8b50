package testutils

import (
	"context"
	"fmt"

	"github.com/quillworks/quill/pkg/search"
)

// MockSearcher is a test searcher that returns configurable results per
// query and records the queries it receives.
type MockSearcher struct {
	// ResultsByQuery maps a query to its results. Queries without an entry
	// return no results.
	ResultsByQuery map[string][]search.Result

	// Queries accumulates all queries passed to Search.
	Queries []string

	// FailOn causes Search to return an error when the query matches.
	FailOn string
}

// NewMockSearcher creates a mock searcher with no canned results.
func NewMockSearcher() *MockSearcher {
	return &MockSearcher{
		ResultsByQuery: make(map[string][]search.Result),
	}
}

func (m *MockSearcher) Search(_ context.Context, query string, limit int) ([]search.Result, error) {
	m.Queries = append(m.Queries, query)

	if m.FailOn != "" && query == m.FailOn {
		return nil, fmt.Errorf("mock search failure for: %s", query)
	}

	results := m.ResultsByQuery[query]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockSearcher) Close() error {
	return nil
}
