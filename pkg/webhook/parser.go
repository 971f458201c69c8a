// Package webhook turns inbound provider payloads into the line format the
// engine ingests: whitespace separated key=value tokens, one event per line.
package webhook

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultEventType labels lines that carry no event token
const DefaultEventType = "webhook.received"

// maxExactFloat is the largest integer magnitude a float64 represents exactly
const maxExactFloat = 1 << 53

// PreviewLimit bounds the stored payload preview, in characters
const PreviewLimit = 240

// Line is one parsed webhook line
type Line struct {
	Raw    string
	Fields map[string]string
	// Leading is the first token of the line when it is not a key=value pair
	Leading string
}

// SplitLines returns the trimmed, non-empty lines of raw
func SplitLines(raw string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == ';'
}

// ParseLine tokenizes a line. Keys are lowercased; values end at a space, comma or semicolon.
func ParseLine(line string) Line {
	parsed := Line{Raw: line, Fields: map[string]string{}}

	for i, token := range strings.FieldsFunc(line, isSeparator) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			if i == 0 {
				parsed.Leading = token
			}
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, exists := parsed.Fields[key]; !exists {
			parsed.Fields[key] = value
		}
	}
	return parsed
}

func (l Line) first(keys ...string) string {
	for _, key := range keys {
		if value := l.Fields[key]; value != "" {
			return value
		}
	}
	return ""
}

// Barcode returns the barcode or sku token
func (l Line) Barcode() string {
	return l.first("barcode", "sku")
}

// Quantity returns the qty or quantity token as an integer
func (l Line) Quantity() (int, bool) {
	raw := l.first("qty", "quantity")
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	// "12.0" style quantities from JSON payloads. Fractions, NaN, Inf and
	// magnitudes a float64 cannot hold exactly count as no quantity.
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if math.Abs(f) > maxExactFloat {
		return 0, false
	}
	return int(f), true
}

// Name returns the name token
func (l Line) Name() string {
	return l.first("name")
}

// EventType prefers an explicit event= token, then a dotted or underscored
// leading token, then DefaultEventType.
func (l Line) EventType() string {
	if event := l.first("event"); event != "" {
		return event
	}
	if l.Leading != "" && strings.ContainsAny(l.Leading, "._") {
		return l.Leading
	}
	return DefaultEventType
}

// ExternalID returns the provider's id for the event, falling back to the barcode
func (l Line) ExternalID() string {
	return l.first("id", "external_id", "barcode", "sku")
}

// Preview truncates a line to PreviewLimit characters
func Preview(line string) string {
	if utf8.RuneCountInString(line) <= PreviewLimit {
		return line
	}
	runes := []rune(line)
	return string(runes[:PreviewLimit])
}
