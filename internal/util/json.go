// Package util holds small helpers shared across packages without committing
// to public API stability.
package util

import "strings"

// FirstJSONObject returns the first balanced top-level JSON object embedded
// in text, or "" when none is found. Models wrap structured answers in prose
// or code fences often enough that strict unmarshalling is not an option.
func FirstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
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
		switch c {
		case '\\':
			escaped = inString
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
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
