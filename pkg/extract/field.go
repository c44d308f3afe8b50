// Package extract converts raw request-document text into confidence-scored
// fields plus a validation verdict.
//
// The engine gathers prior context from the memory tiers, builds one
// generation request, recovers structured output from the response with a
// fixed ladder of parsing strategies, and validates the result against the
// source text. Corrections made by a reviewer feed back into the memory
// tiers for future runs.
package extract

// Field names produced by the extraction checklist.
const (
	FieldEntityName   = "entity_name"
	FieldIndustry     = "industry"
	FieldContacts     = "contacts"
	FieldServiceTypes = "service_types"
	FieldTechnologies = "technologies"
	FieldGeography    = "geography"
	FieldDueDate      = "due_date"
	FieldFeeEstimate  = "fee_estimate"
	FieldOutputFormat = "output_format"
	FieldObjectives   = "objectives"
	FieldRequirements = "requirements"
)

// RequiredFields must be present with sufficient confidence for an
// extraction to be valid.
var RequiredFields = []string{FieldEntityName, FieldIndustry}

// DefaultConfidenceThreshold marks fields below it as uncertain.
const DefaultConfidenceThreshold = 0.5

// FieldResult is one extracted field. Immutable after extraction; a
// correction produces a new version rather than editing this one.
type FieldResult struct {
	// Value is the extracted content; nil when the field was not found.
	Value any `json:"value"`

	// Confidence is the extraction certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Source quotes or paraphrases where in the document the value came from.
	Source string `json:"source,omitempty"`
}

// FieldSet maps field names to their extraction results.
type FieldSet map[string]FieldResult

// StringValue returns the field's value as a string, or "" when the field
// is absent or not a string.
func (fs FieldSet) StringValue(name string) string {
	s, _ := fs[name].Value.(string)
	return s
}
