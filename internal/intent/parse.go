package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when the AI reply looks like JSON but does
// not decode.
var ErrMalformedResponse = errors.New("intent: malformed AI response")

// Intent is the structured result of intent extraction. Name and Symbol are
// nil when the AI did not detect a deployment request.
type Intent struct {
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Response string  `json:"response"`
}

// Deploy reports whether both a non-empty name and symbol were extracted.
func (i Intent) Deploy() bool {
	return i.Name != nil && *i.Name != "" && i.Symbol != nil && *i.Symbol != ""
}

// NameOrEmpty returns the name or "".
func (i Intent) NameOrEmpty() string {
	if i.Name == nil {
		return ""
	}
	return *i.Name
}

// SymbolOrEmpty returns the symbol or "".
func (i Intent) SymbolOrEmpty() string {
	if i.Symbol == nil {
		return ""
	}
	return *i.Symbol
}

var lineBreaks = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// ParseIntent recovers an Intent from an AI reply. Line breaks are removed
// first. A reply that is a JSON object is decoded as-is; otherwise the
// text between the first '{' and the last '}' is decoded. A reply without
// braces is a conversational answer and becomes an Intent with no name or
// symbol whose Response is the reply.
func ParseIntent(raw string) (Intent, error) {
	text := lineBreaks.Replace(raw)
	trimmed := strings.TrimSpace(text)

	var candidate string
	switch {
	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		candidate = trimmed
	case strings.Contains(trimmed, "{") && strings.Contains(trimmed, "}"):
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if end < start {
			return Intent{}, fmt.Errorf("%w: closing brace before opening brace", ErrMalformedResponse)
		}
		candidate = trimmed[start : end+1]
	default:
		return Intent{Response: text}, nil
	}

	var out Intent
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}
