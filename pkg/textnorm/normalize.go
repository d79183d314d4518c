// Package textnorm implements the line-ending and whitespace normalization
// applied at every text ingress point: file reads, payload writes, and
// payload reads.
package textnorm

import (
	"regexp"
	"strings"
)

var multiNewline = regexp.MustCompile(`\n{3,}`)

// Normalize collapses CRLF to LF, strips trailing spaces from each line,
// and collapses runs of 3+ newlines down to 2.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")

	return multiNewline.ReplaceAllString(s, "\n\n")
}

// Payload walks a JSON-shaped payload map and normalizes every string
// value in place, returning a new map (inputs are not mutated).
func Payload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case string:
			out[k] = Normalize(val)
		default:
			out[k] = v
		}
	}
	return out
}
