// Package research compares extracted facts against a target outline,
// produces sanitized research directives, and executes search-and-summarize
// work over the confirmed gaps.
//
// Everything that leaves the process towards a search or generation backend
// as part of a research directive goes through the Sanitizer first, and
// generated directive text is sanitized again on the way back in.
package research

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder tokens substituted for identifying text.
const (
	PlaceholderClient = "[CLIENT]"
	PlaceholderEmail  = "[EMAIL]"
	PlaceholderPhone  = "[PHONE]"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// phoneRe matches three groups of 3-3-4 digits with optional separators,
	// including a parenthesized area code.
	phoneRe = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

// Sanitizer redacts entity-identifying strings, email addresses, and phone
// numbers from text.
type Sanitizer struct {
	entityRes []*regexp.Regexp
}

// NewSanitizer builds a sanitizer for the given entity-identifying strings.
// Empty names are ignored; matching is case-insensitive.
func NewSanitizer(entityNames ...string) *Sanitizer {
	// Longer names first, so "Acme Corp" wins over a bare "Acme".
	names := append([]string(nil), entityNames...)
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	s := &Sanitizer{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s.entityRes = append(s.entityRes, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(name)))
	}
	return s
}

// Sanitize replaces every entity occurrence with [CLIENT], then redacts
// email and phone patterns to their own placeholders.
func (s *Sanitizer) Sanitize(text string) string {
	for _, re := range s.entityRes {
		text = re.ReplaceAllString(text, PlaceholderClient)
	}
	text = emailRe.ReplaceAllString(text, PlaceholderEmail)
	text = phoneRe.ReplaceAllString(text, PlaceholderPhone)
	return text
}
