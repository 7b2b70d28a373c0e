package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON returns the first JSON object embedded in s, tolerating
// markdown fences, leading prose and trailing commas. It returns an empty
// string when no non-empty object can be parsed.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "```"))

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	obj := extractObject(s[start:])
	obj = trailingComma.ReplaceAllString(obj, "$1")

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil || len(fields) == 0 {
		return ""
	}
	return obj
}

// extractObject returns the balanced object at the start of s, or s itself
// when the braces never close.
func extractObject(s string) string {
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}
