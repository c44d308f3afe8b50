package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationStatus classifies an extraction as a whole.
type ValidationStatus string

const (
	StatusValid   ValidationStatus = "valid"
	StatusWarning ValidationStatus = "warning"
	StatusError   ValidationStatus = "error"
)

// FieldIssue is one validation error tied to a field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the deterministic verdict over a FieldSet plus the raw
// source text. It is never persisted independently of the extraction it
// describes.
type ValidationResult struct {
	Status                ValidationStatus `json:"status"`
	Errors                []FieldIssue     `json:"errors,omitempty"`
	Warnings              []string         `json:"warnings,omitempty"`
	FieldsRequiringReview []string         `json:"fields_requiring_review,omitempty"`
}

var (
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

	// obfuscatedEmailRe matches "[at]" / "(at)" markers that suggest the
	// document deliberately hides an address the model may have normalized.
	obfuscatedEmailRe = regexp.MustCompile(`(?i)[\[(]\s*at\s*[\])]`)

	// corporateNameRe matches proper names carrying a corporate suffix.
	corporateNameRe = regexp.MustCompile(`\b(?:[A-Z][A-Za-z&'.-]+\s+)+(?:Corporation|Company|Corp|Inc|Ltd|LLC)\b`)
)

// dueDateLayouts are tried in order when parsing the due date field.
var dueDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"2 January 2006",
}

// Validate applies the extraction rule set to a parsed field set. The
// threshold marks required fields as uncertain; pass
// DefaultConfidenceThreshold unless configured otherwise.
func Validate(fields FieldSet, sourceText string, threshold float64, now time.Time) ValidationResult {
	var result ValidationResult

	for _, name := range RequiredFields {
		fr, ok := fields[name]
		switch {
		case !ok || fr.Value == nil || fr.Value == "":
			result.Errors = append(result.Errors, FieldIssue{
				Field:   name,
				Message: fmt.Sprintf("required field %s is missing", name),
			})
		case fr.Confidence < threshold:
			result.Errors = append(result.Errors, FieldIssue{
				Field:   name,
				Message: fmt.Sprintf("required field %s has confidence %.2f below %.2f", name, fr.Confidence, threshold),
			})
		}
	}

	if email := contactEmail(fields); email != "" {
		switch {
		case !emailRe.MatchString(email):
			result.FieldsRequiringReview = append(result.FieldsRequiringReview, FieldContacts)
		case obfuscatedEmailRe.MatchString(sourceText):
			// The address parses but the document obfuscated it, so the
			// model may have guessed the normalization.
			result.FieldsRequiringReview = append(result.FieldsRequiringReview, FieldContacts)
		}
	}

	if due := fields.StringValue(FieldDueDate); due != "" {
		when, ok := parseDueDate(due)
		switch {
		case !ok:
			result.FieldsRequiringReview = append(result.FieldsRequiringReview, FieldDueDate)
		case when.Before(now.Truncate(24 * time.Hour)):
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("due date %s is in the past", due))
		}
	}

	if names := corporateNames(sourceText); len(names) > 1 {
		result.FieldsRequiringReview = append(result.FieldsRequiringReview, FieldEntityName)
	}

	switch {
	case len(result.Errors) > 0:
		result.Status = StatusError
	case len(result.Warnings) > 0 || len(result.FieldsRequiringReview) > 0:
		result.Status = StatusWarning
	default:
		result.Status = StatusValid
	}

	return result
}

// contactEmail digs the client-contact email out of the contacts field,
// which models return as a map, a list of maps, or a bare string.
func contactEmail(fields FieldSet) string {
	value := fields[FieldContacts].Value

	switch v := value.(type) {
	case string:
		if strings.Contains(v, "@") {
			return strings.TrimSpace(v)
		}
	case map[string]any:
		if s, ok := v["email"].(string); ok {
			return strings.TrimSpace(s)
		}
	case []any:
		for _, elem := range v {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := m["email"].(string); ok && s != "" {
				return strings.TrimSpace(s)
			}
		}
	}

	return ""
}

func parseDueDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// corporateNames returns the distinct suffix-carrying proper names in the
// source text, normalized for comparison.
func corporateNames(sourceText string) []string {
	seen := map[string]bool{}
	var names []string

	for _, m := range corporateNameRe.FindAllString(sourceText, -1) {
		normalized := strings.ToLower(strings.Join(strings.Fields(m), " "))
		if !seen[normalized] {
			seen[normalized] = true
			names = append(names, m)
		}
	}

	return names
}
