package testutils

import (
	"context"

	"github.com/quillworks/quill/pkg/llm"
)

// MockGenerator is a test generator that returns queued responses and
// records every request it receives.
type MockGenerator struct {
	// Responses are returned in order; the last one repeats when exhausted.
	Responses []string

	// Requests accumulates all requests passed to Generate.
	Requests []*llm.Request

	// Usage is attached to every response.
	Usage llm.Usage

	// FailWith causes Generate to return this error.
	FailWith error

	calls int
}

// NewMockGenerator creates a mock generator with a fixed set of responses.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{Responses: responses}
}

func (m *MockGenerator) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.Requests = append(m.Requests, req)

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	text := ""
	if len(m.Responses) > 0 {
		i := m.calls
		if i >= len(m.Responses) {
			i = len(m.Responses) - 1
		}
		text = m.Responses[i]
	}
	m.calls++

	return &llm.Response{
		Text:  text,
		Model: "test-model",
		Usage: &llm.Usage{
			InputTokens:  m.Usage.InputTokens,
			OutputTokens: m.Usage.OutputTokens,
		},
	}, nil
}

func (m *MockGenerator) Close() error {
	return nil
}
