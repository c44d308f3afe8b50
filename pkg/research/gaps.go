package research

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/memory"
)

// GapAnalysisResult names what the extracted facts do not yet cover and the
// searches that would cover it. DeepResearchPrompt stays empty until a human
// confirms the gap list; ConfirmGaps populates it.
type GapAnalysisResult struct {
	Gaps               []string `json:"gaps"`
	SearchQueries      []string `json:"search_queries"`
	Reasoning          string   `json:"reasoning"`
	DeepResearchPrompt string   `json:"deep_research_prompt"`
}

const gapSystemPrompt = `You are an analyst deciding what a proposal team still needs to research. Respond with a single JSON object and nothing else.`

var gapPromptTemplate = template.Must(template.New("gaps").Parse(`A proposal outline needs the following sections:
{{range .Outline}}- {{.}}
{{end}}
The following facts were extracted from the request document:
{{range .Facts}}- {{.}}
{{end}}{{if .Similar}}
Context from similar past work (identifying details redacted):
{{range .Similar}}- {{.}}
{{end}}{{end}}
Identify what the outline needs that the extracted facts do not cover, and
propose web search queries that would close each gap. Do not include client
names, emails, or phone numbers in the queries.

Respond with a JSON object: {"gaps": [...], "search_queries": [...], "reasoning": "..."}.`))

// AnalyzeGaps compares the target outline against the extracted fields plus
// sanitized episodic context and returns the gap list and search queries.
// The deep research prompt is deliberately left empty here so a human can
// edit the gap list before any directive is generated.
func (e *Engine) AnalyzeGaps(ctx context.Context, sessionID string, outline []string, fields extract.FieldSet) (*GapAnalysisResult, error) {
	if len(outline) == 0 {
		outline = DefaultOutline
	}

	sanitizer := e.sanitizerFor(fields)

	var similar []string
	if e.mem != nil {
		query := fields.StringValue(extract.FieldIndustry) + " proposal"
		for _, item := range e.mem.SimilarEpisodes(ctx, query, 3, nil) {
			similar = append(similar, sanitizer.Sanitize(memory.EmbedText(item.Item)))
		}
	}

	data := struct {
		Outline []string
		Facts   []string
		Similar []string
	}{
		Outline: outline,
		Facts:   factLines(fields),
		Similar: similar,
	}

	var buf strings.Builder
	if err := gapPromptTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering gap analysis prompt: %w", err)
	}

	resp, err := e.generator.Generate(ctx, &llm.Request{
		System:    gapSystemPrompt,
		Prompt:    buf.String(),
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("gap analysis generation failed: %w", err)
	}

	var result GapAnalysisResult
	if err := extract.DecodeJSON(resp.Text, &result); err != nil {
		return nil, fmt.Errorf("parsing gap analysis response: %w", err)
	}

	// Populated only by ConfirmGaps, after human review of the gap list.
	result.DeepResearchPrompt = ""

	e.logger.Debug("gap analysis complete",
		zap.String("session_id", sessionID),
		zap.Int("gaps", len(result.Gaps)),
		zap.Int("queries", len(result.SearchQueries)),
	)

	return &result, nil
}

// DefaultOutline is the proposal structure gaps are measured against.
var DefaultOutline = []string{
	"executive summary",
	"understanding of objectives",
	"proposed approach",
	"team and experience",
	"timeline and milestones",
	"fees and commercial terms",
}

// factLines renders the extracted fields as prompt bullet lines, skipping
// absent values.
func factLines(fields extract.FieldSet) []string {
	var lines []string
	for _, name := range []string{
		extract.FieldEntityName,
		extract.FieldIndustry,
		extract.FieldServiceTypes,
		extract.FieldTechnologies,
		extract.FieldGeography,
		extract.FieldDueDate,
		extract.FieldFeeEstimate,
		extract.FieldOutputFormat,
		extract.FieldObjectives,
		extract.FieldRequirements,
	} {
		fr, ok := fields[name]
		if !ok || fr.Value == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %v (confidence %.2f)", name, fr.Value, fr.Confidence))
	}
	return lines
}
