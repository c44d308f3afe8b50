package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparseable is returned when no recovery strategy yields decodable JSON.
var ErrUnparseable = errors.New("no recovery strategy produced decodable JSON")

var (
	codeFenceRe     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// DecodeJSON decodes generation output into v, recovering from the common
// ways a model wraps or damages JSON. Strategies run in order, stopping at
// the first success:
//
//  1. decode the response as-is
//  2. decode the contents of a markdown code fence
//  3. decode after removing trailing commas before closing brackets
//  4. decode the first balanced top-level object, trailing commas removed
//
// When every strategy fails the returned error wraps ErrUnparseable.
func DecodeJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	if m := codeFenceRe.FindStringSubmatch(raw); m != nil {
		if err := json.Unmarshal([]byte(m[1]), v); err == nil {
			return nil
		}
	}

	stripped := trailingCommaRe.ReplaceAllString(raw, "$1")
	if err := json.Unmarshal([]byte(stripped), v); err == nil {
		return nil
	}

	if obj, ok := firstBalancedObject(raw); ok {
		obj = trailingCommaRe.ReplaceAllString(obj, "$1")
		if err := json.Unmarshal([]byte(obj), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrUnparseable, snippet(raw))
}

// firstBalancedObject scans for the first top-level {...} pair, tracking
// string literals so braces inside them don't count.
func firstBalancedObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		c := raw[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}

	return "", false
}

func snippet(raw string) string {
	const max = 80
	if len(raw) <= max {
		return raw
	}
	return raw[:max] + "..."
}
