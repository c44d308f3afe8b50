package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/memory"
	"github.com/quillworks/quill/pkg/tokens"
)

// ErrEmptySource is returned when there is no document text to extract from.
var ErrEmptySource = errors.New("source text is empty")

// episodeKeyPrefixLen bounds how much source text feeds the episode key, so
// appending boilerplate to a document doesn't change its identity.
const episodeKeyPrefixLen = 512

// Config holds configuration for the extraction engine.
type Config struct {
	// ConfidenceThreshold marks required fields below it as uncertain.
	// Defaults to DefaultConfidenceThreshold if zero.
	ConfidenceThreshold float64

	// MaxTokens bounds the generation response.
	MaxTokens int

	// Rates price the generation calls.
	Rates tokens.Rates
}

// Engine runs memory-augmented extraction over request documents.
type Engine struct {
	generator llm.Generator
	mem       *memory.Facade
	config    Config
	logger    *zap.Logger

	// now is swappable so tests can control the clock.
	now func() time.Time
}

// NewEngine creates an extraction engine. The memory facade may be nil, in
// which case extraction runs without prior context.
func NewEngine(generator llm.Generator, mem *memory.Facade, config Config, logger *zap.Logger) *Engine {
	if config.ConfidenceThreshold == 0 {
		config.ConfidenceThreshold = DefaultConfidenceThreshold
	}

	return &Engine{
		generator: generator,
		mem:       mem,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Result is the output of one extraction run.
type Result struct {
	// Fields holds the extracted, confidence-scored fields.
	Fields FieldSet `json:"fields"`

	// Validation is the deterministic verdict over Fields.
	Validation ValidationResult `json:"validation"`

	// EpisodeKey identifies the stored episodic memory entry.
	EpisodeKey string `json:"episode_key"`

	// Usage accounts for the generation call.
	Usage tokens.Usage `json:"usage"`
}

// Extract converts raw document text into a field set plus validation
// verdict, consulting the memory tiers for prior context and recording the
// run as an episode.
func (e *Engine) Extract(ctx context.Context, sessionID, sourceText string) (*Result, error) {
	if sourceText == "" {
		return nil, ErrEmptySource
	}

	var (
		conventions map[string]string
		patterns    map[string]any
		corrections []memory.Correction
		similar     []memory.ScoredItem
	)
	if e.mem != nil {
		conventions = e.mem.NamingConventions(ctx)
		patterns = e.mem.ClientPatterns(ctx)
		corrections = e.mem.SessionCorrections(ctx, sessionID)
		similar = e.mem.SimilarEpisodes(ctx, keyPrefix(sourceText), 3,
			map[string]string{"stage": "metadata_extraction"})

		e.mem.CacheSourceText(ctx, sessionID, sourceText, 0)
	}

	prompt, err := buildPrompt(sourceText, conventions, patterns, corrections, similar)
	if err != nil {
		return nil, err
	}

	resp, err := e.generator.Generate(ctx, &llm.Request{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction generation failed: %w", err)
	}

	var fields FieldSet
	if err := DecodeJSON(resp.Text, &fields); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}

	validation := Validate(fields, sourceText, e.config.ConfidenceThreshold, e.now())

	result := &Result{
		Fields:     fields,
		Validation: validation,
		EpisodeKey: EpisodeKey(sourceText),
	}
	if resp.Usage != nil {
		result.Usage = tokens.NewUsage(e.config.Rates, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	e.storeEpisode(ctx, sessionID, result)

	e.logger.Debug("extraction complete",
		zap.String("session_id", sessionID),
		zap.String("status", string(validation.Status)),
		zap.Int("fields", len(fields)),
	)

	return result, nil
}

// storeEpisode persists the run for later semantic retrieval. Accuracy is
// null until a human review back-fills it; corrections start empty.
func (e *Engine) storeEpisode(ctx context.Context, sessionID string, result *Result) {
	if e.mem == nil {
		return
	}

	summary := fmt.Sprintf("extraction of %s (%s)",
		orUnknown(result.Fields.StringValue(FieldEntityName)),
		orUnknown(result.Fields.StringValue(FieldIndustry)))

	e.mem.StoreEpisode(ctx, result.EpisodeKey, map[string]any{
		"summary":     summary,
		"fields":      result.Fields,
		"accuracy":    nil,
		"corrections": []any{},
	}, map[string]string{
		"stage":   "metadata_extraction",
		"session": sessionID,
		"status":  string(result.Validation.Status),
	})
}

// EpisodeKey derives the episodic memory key for a document from a hash of
// its leading text.
func EpisodeKey(sourceText string) string {
	sum := sha256.Sum256([]byte(keyPrefix(sourceText)))
	return "extraction:" + hex.EncodeToString(sum[:])[:16]
}

func keyPrefix(sourceText string) string {
	if len(sourceText) > episodeKeyPrefixLen {
		return sourceText[:episodeKeyPrefixLen]
	}
	return sourceText
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
