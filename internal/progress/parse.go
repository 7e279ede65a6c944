package progress

import (
	"encoding/json"
	"strings"
)

// Parsed is the outcome of decoding a stored JSON column. When UseDefault is
// set the stored text was empty or malformed and Value holds the fallback.
type Parsed[T any] struct {
	Value      T
	UseDefault bool
	// Malformed distinguishes undecodable text from an absent value.
	Malformed bool
}

// Ok reports whether the stored value decoded cleanly.
func (p Parsed[T]) Ok() bool {
	return !p.UseDefault
}

// ParseJSON decodes raw into T, falling back when raw is blank or malformed.
func ParseJSON[T any](raw string, fallback T) Parsed[T] {
	if strings.TrimSpace(raw) == "" {
		return Parsed[T]{Value: fallback, UseDefault: true}
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Parsed[T]{Value: fallback, UseDefault: true, Malformed: true}
	}
	return Parsed[T]{Value: v}
}

// ParsePayload decodes an event payload. Payloads that are not a JSON object
// come back as {"raw": text}.
func ParsePayload(raw string) Parsed[map[string]any] {
	p := ParseJSON[map[string]any](raw, nil)
	if p.Ok() && p.Value != nil {
		return p
	}
	if strings.TrimSpace(raw) == "" {
		return Parsed[map[string]any]{Value: map[string]any{}, UseDefault: true}
	}
	return Parsed[map[string]any]{Value: map[string]any{"raw": raw}, UseDefault: true, Malformed: true}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
