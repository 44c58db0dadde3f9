// Package textutils has small string helpers for reports.
package textutils

import "strings"

// IndentString prefixes every non-blank line of s with indent repeated
// nIndent times. Blank lines are emptied.
func IndentString(s string, indent string, nIndent int) string {
	prefix := strings.Repeat(indent, nIndent)
	var res strings.Builder
	res.Grow(len(s) + (strings.Count(s, "\n")+1)*len(prefix))
	for line := range strings.SplitAfterSeq(s, "\n") {
		if strings.TrimSpace(line) == "" {
			if strings.HasSuffix(line, "\n") {
				res.WriteByte('\n')
			}
			continue
		}
		res.WriteString(prefix)
		res.WriteString(line)
	}
	return res.String()
}

// Ellipsize shortens s to at most n runes, replacing the end with
// "...". Only the first line of s is kept.
func Ellipsize(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	r := []rune(s)
	if len(r) <= n || n < 3 {
		return s
	}
	return string(r[:n-3]) + "..."
}
