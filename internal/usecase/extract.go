package usecase

import (
	"encoding/json"
	"strings"
)

// Extractor pulls a JSON object out of free-form oracle text. It returns nil
// when no parseable object is found and must never panic.
type Extractor func(text string) []byte

// ExtractJSON returns the first balanced {...} span of text if it is valid JSON.
func ExtractJSON(text string) []byte {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				span := []byte(text[start : i+1])
				if !json.Valid(span) {
					return nil
				}
				return span
			}
		}
	}

	return nil
}

// decodeReply extracts and unmarshals the oracle reply into v.
func decodeReply(extract Extractor, reply string, v any) bool {
	if extract == nil {
		extract = ExtractJSON
	}
	span := extract(reply)
	if span == nil {
		return false
	}
	return json.Unmarshal(span, v) == nil
}
