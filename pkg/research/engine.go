package research

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/memory"
	"github.com/quillworks/quill/pkg/search"
	"github.com/quillworks/quill/pkg/tokens"
)

const (
	// DefaultRelevanceFloor filters search findings before summarization.
	DefaultRelevanceFloor = 0.3

	// DefaultSearchDelay is the courtesy pause between external search calls.
	DefaultSearchDelay = 1500 * time.Millisecond

	// DefaultResultsPerQuery bounds one search call.
	DefaultResultsPerQuery = 10
)

// Config holds configuration for the gap and research engine.
type Config struct {
	// RelevanceFloor defaults to DefaultRelevanceFloor if zero.
	RelevanceFloor float64

	// SearchDelay defaults to DefaultSearchDelay if zero.
	SearchDelay time.Duration

	// ResultsPerQuery defaults to DefaultResultsPerQuery if zero.
	ResultsPerQuery int

	// MaxTokens bounds each generation response.
	MaxTokens int

	// Rates price the generation calls.
	Rates tokens.Rates
}

// Engine runs gap analysis, directive generation, and research execution.
type Engine struct {
	generator llm.Generator
	searcher  search.Searcher
	mem       *memory.Facade
	config    Config
	logger    *zap.Logger

	// sleep is swappable so tests can skip the inter-search delay.
	sleep func(ctx context.Context, d time.Duration)
}

// NewEngine creates a research engine. The memory facade may be nil; the
// searcher may be nil when only gap analysis and directives are needed.
func NewEngine(generator llm.Generator, searcher search.Searcher, mem *memory.Facade, config Config, logger *zap.Logger) *Engine {
	if config.RelevanceFloor == 0 {
		config.RelevanceFloor = DefaultRelevanceFloor
	}
	if config.SearchDelay == 0 {
		config.SearchDelay = DefaultSearchDelay
	}
	if config.ResultsPerQuery == 0 {
		config.ResultsPerQuery = DefaultResultsPerQuery
	}

	return &Engine{
		generator: generator,
		searcher:  searcher,
		mem:       mem,
		config:    config,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// sanitizerFor builds the sanitizer covering the entity-identifying strings
// of one extraction.
func (e *Engine) sanitizerFor(fields extract.FieldSet) *Sanitizer {
	return NewSanitizer(fields.StringValue(extract.FieldEntityName))
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
