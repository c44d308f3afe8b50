package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
)

// Directive status tags.
const (
	DirectiveGenerated   = "generated"
	DirectiveRegenerated = "regenerated"
)

// ErrNoConfirmedGaps is returned when directive generation has nothing to
// work from.
var ErrNoConfirmedGaps = errors.New("no confirmed gaps to generate a directive from")

// Directive is the sanitized research brief handed to the research stage.
type Directive struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

const directiveSystemPrompt = `You write research briefs for proposal teams. Keep the exact section structure you are given. Never invent client names or contact details.`

var confirmPromptTemplate = template.Must(template.New("confirm").Parse(`Write a deep research directive with exactly these sections, in order:

1. Role: who the researcher should act as
2. Context: what the engagement is about
3. Already addressed: requirements the team has covered
4. Gaps: the open questions, enumerated
5. Objectives: what the research must deliver

Engagement context (identifying details redacted):
{{range .Context}}- {{.}}
{{end}}{{if .Addressed}}
Requirements already addressed:
{{range .Addressed}}- {{.}}
{{end}}{{end}}
Confirmed gaps:
{{range .Gaps}}- {{.}}
{{end}}
Write the directive text only, no preamble.`))

var regeneratePromptTemplate = template.Must(template.New("regenerate").Parse(`Revise the research directive below. Keep its five-section structure (Role, Context, Already addressed, Gaps, Objectives) and apply the reviewer feedback.

Current directive:

{{.Directive}}

Reviewer feedback (identifying details redacted):

{{.Feedback}}

Write the revised directive text only, no preamble.`))

// ConfirmGaps turns a human-confirmed gap list into a deep research
// directive. Inputs are sanitized before generation and the generated text
// is sanitized again, in case the generator reproduced a redacted name.
func (e *Engine) ConfirmGaps(ctx context.Context, fields extract.FieldSet, confirmedGaps, addressed []string) (*Directive, error) {
	if len(confirmedGaps) == 0 {
		return nil, ErrNoConfirmedGaps
	}

	sanitizer := e.sanitizerFor(fields)

	data := struct {
		Context   []string
		Addressed []string
		Gaps      []string
	}{
		Context:   sanitizeAll(sanitizer, factLines(fields)),
		Addressed: sanitizeAll(sanitizer, addressed),
		Gaps:      sanitizeAll(sanitizer, confirmedGaps),
	}

	var buf strings.Builder
	if err := confirmPromptTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering directive prompt: %w", err)
	}

	text, err := e.generateDirective(ctx, buf.String(), sanitizer)
	if err != nil {
		return nil, err
	}

	return &Directive{Text: text, Status: DirectiveGenerated}, nil
}

// RegenerateDirective revises a prior directive from reviewer feedback,
// preserving the section structure. The feedback is sanitized before use.
func (e *Engine) RegenerateDirective(ctx context.Context, fields extract.FieldSet, prior *Directive, feedback string) (*Directive, error) {
	if prior == nil || prior.Text == "" {
		return nil, fmt.Errorf("no prior directive to regenerate")
	}

	sanitizer := e.sanitizerFor(fields)

	data := struct {
		Directive string
		Feedback  string
	}{
		Directive: sanitizer.Sanitize(prior.Text),
		Feedback:  sanitizer.Sanitize(feedback),
	}

	var buf strings.Builder
	if err := regeneratePromptTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering regeneration prompt: %w", err)
	}

	text, err := e.generateDirective(ctx, buf.String(), sanitizer)
	if err != nil {
		return nil, err
	}

	return &Directive{Text: text, Status: DirectiveRegenerated}, nil
}

func (e *Engine) generateDirective(ctx context.Context, prompt string, sanitizer *Sanitizer) (string, error) {
	resp, err := e.generator.Generate(ctx, &llm.Request{
		System:    directiveSystemPrompt,
		Prompt:    prompt,
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("directive generation failed: %w", err)
	}

	// The model may echo identifying details from the prompt back out.
	return sanitizer.Sanitize(strings.TrimSpace(resp.Text)), nil
}

func sanitizeAll(s *Sanitizer, lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, s.Sanitize(line))
	}
	return out
}
