// Package jsonx extracts JSON payloads from LLM text output: fenced blocks,
// balanced top-level objects, and whole-message parses.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// StripFences removes a Markdown code fence wrapping the whole payload,
// leaving inner content untouched
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// FencedBlocks returns the contents of every fenced code block
func FencedBlocks(text string) []string {
	var blocks []string
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return blocks
}

// BalancedObjects scans text for top-level balanced {...} spans. Braces
// inside JSON strings are honored; candidates that do not parse as JSON
// are dropped.
func BalancedObjects(text string) []string {
	var objects []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						objects = append(objects, candidate)
					}
					start = -1
				}
			}
		}
	}
	return objects
}

// Decode parses data into out with number preservation disabled (numbers
// arrive as float64, matching the lenient normalizers downstream)
func Decode(data string, out any) error {
	return json.Unmarshal([]byte(data), out)
}
