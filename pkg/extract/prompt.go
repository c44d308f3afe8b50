package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/quillworks/quill/pkg/memory"
)

const systemPrompt = `You are an analyst extracting structured metadata from proposal-request documents. Respond with a single JSON object and nothing else.`

var promptTemplate = template.Must(template.New("extract").Parse(`Extract the following fields from the request document below.

Required fields:
- entity_name: the requesting organization's name
- industry: the organization's industry

Optional fields (omit value as null when absent):
- contacts: contact people with name, role, email, phone
- service_types: services being requested
- technologies: technologies named in the request
- geography: locations or regions in scope
- due_date: response due date
- fee_estimate: stated budget or fee expectations
- output_format: requested deliverable format
- objectives: stated objectives, each citing its source passage
- requirements: explicit requirements, each citing its source passage

Score each field's confidence:
- 0.95-1.0: explicitly stated
- 0.85-0.94: clearly stated
- 0.70-0.84: strongly implied
- 0.50-0.69: inferred
- below 0.50: uncertain
{{if .Conventions}}
## Organization naming conventions
Prefer these phrasings when naming extracted values:
{{range .Conventions}}- {{.}}
{{end}}{{end}}{{if .Patterns}}
## Known client patterns
{{range .Patterns}}- {{.}}
{{end}}{{end}}{{if .Corrections}}
## Corrections made earlier in this session
{{range .Corrections}}- {{.}}
{{end}}{{end}}{{if .Similar}}
## Similar past extractions
{{range .Similar}}- {{.}}
{{end}}{{end}}
## Request document

{{.SourceText}}

Respond with a JSON object mapping each field name to {"value": ..., "confidence": <0..1>, "source": "<where in the document>"}.`))

type promptContext struct {
	SourceText  string
	Conventions []string
	Patterns    []string
	Corrections []string
	Similar     []string
}

// buildPrompt renders the generation request for one extraction, embedding
// the gathered memory context as labeled sections.
func buildPrompt(sourceText string, conventions map[string]string, patterns map[string]any, corrections []memory.Correction, similar []memory.ScoredItem) (string, error) {
	pc := promptContext{
		SourceText:  sourceText,
		Conventions: formatStringMap(conventions),
		Patterns:    formatAnyMap(patterns),
	}

	for _, c := range corrections {
		pc.Corrections = append(pc.Corrections,
			fmt.Sprintf("%s: %q was corrected to %q", c.Field, c.Original, c.Corrected))
	}

	for _, s := range similar {
		pc.Similar = append(pc.Similar, memory.EmbedText(s.Item))
	}

	var buf strings.Builder
	if err := promptTemplate.Execute(&buf, pc); err != nil {
		return "", fmt.Errorf("rendering extraction prompt: %w", err)
	}
	return buf.String(), nil
}

func formatStringMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %s", k, m[k]))
	}
	return out
}

func formatAnyMap(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(m[k])
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", k, raw))
	}
	return out
}
