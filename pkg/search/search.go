// Package search provides a pluggable web-search layer for the research stage.
//
// Searchers return ranked result tuples (title, URL, snippet); relevance
// scoring and summarization happen downstream in pkg/research.
package search

import (
	"context"
	"errors"
)

// ErrConnection is returned when the search backend is unreachable.
var ErrConnection = errors.New("search backend connection failed")

// Result is one ranked search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher executes web searches.
type Searcher interface {
	// Search runs one query and returns up to limit ranked results.
	// An empty result slice is a valid answer, not an error.
	Search(ctx context.Context, query string, limit int) ([]Result, error)

	// Close releases any resources held by the searcher.
	Close() error
}
