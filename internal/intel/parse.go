package intel

import (
	"encoding/json"
	"strings"

	"github.com/leapstack-labs/structon/pkg/core"
)

// ParseJSON extracts structured data from model output. It prefers a
// fenced code block, then falls back to the first balanced JSON object
// or array in the text. Model chatter around the JSON is ignored.
func ParseJSON(text string) (any, error) {
	candidate := fencedBlock(text)
	if candidate == "" {
		candidate = balancedJSON(text)
	}
	if candidate == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "no JSON found in model output")
	}

	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "malformed JSON in model output")
	}
	return v, nil
}

// fencedBlock returns the contents of the first ``` fence, stripping
// an optional language tag.
func fencedBlock(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "yaml", or empty).
		firstLine := strings.TrimSpace(rest[:nl])
		if len(firstLine) <= 8 && !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// balancedJSON returns the first balanced {...} or [...] region,
// respecting string literals and escapes.
func balancedJSON(text string) string {
	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
