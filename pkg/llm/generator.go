// Package llm provides a pluggable text-generation layer for the quill system.
//
// The [Generator] interface is intentionally minimal: one prompt in, one
// completion out, with token usage attached. Engines build their own prompts
// and parse their own structured output; generators only move text.
//
// Generators are pluggable via configuration:
//
//	[llm]
//	provider = "anthropic"   # or "ollama"
package llm

import (
	"context"
	"errors"
)

// ErrEmptyPrompt is returned when a generation request carries no prompt text.
var ErrEmptyPrompt = errors.New("empty prompt")

// Request is a provider-agnostic generation request.
type Request struct {
	// System is an optional system prompt.
	System string `json:"system,omitempty"`

	// Prompt is the user prompt text.
	Prompt string `json:"prompt"`

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature overrides the provider default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Response is a provider-agnostic generation response.
type Response struct {
	// Text is the completion text.
	Text string `json:"text"`

	// Model is the model that produced the completion.
	Model string `json:"model"`

	// StopReason reports why generation ended (e.g., "end_turn", "length").
	StopReason string `json:"stop_reason,omitempty"`

	// Usage carries token counts when the provider reports them.
	Usage *Usage `json:"usage,omitempty"`
}

// Usage contains token counts for one generation call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Generator produces a text completion for a prompt.
type Generator interface {
	// Generate runs one generation call. Implementations must honor ctx
	// cancellation and return the provider's token usage when available.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Close releases generator resources.
	Close() error
}
