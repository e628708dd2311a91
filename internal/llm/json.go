package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeBlock removes a surrounding markdown code fence, if any.
// Models often wrap JSON answers in ```json fences despite instructions.
func StripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// DecodeJSON unmarshals a model response into v, tolerating code fences
// and leading prose before the first JSON object or array.
func DecodeJSON(raw string, v any) error {
	text := StripCodeBlock(raw)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return fmt.Errorf("no json in response: %s", truncate(text, 200))
	}
	candidate := text[start:]
	if end := lastBalanced(candidate); end > 0 {
		candidate = candidate[:end]
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("parse json: %w (raw: %s)", err, truncate(text, 200))
	}
	return nil
}

// lastBalanced returns the index one past the closing bracket matching
// the opening bracket at position 0, or -1 when unbalanced.
func lastBalanced(s string) int {
	if len(s) == 0 {
		return -1
	}
	var open, close byte
	switch s[0] {
	case '{':
		open, close = '{', '}'
	case '[':
		open, close = '[', ']'
	default:
		return -1
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
