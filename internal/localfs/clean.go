package localfs

import "regexp"

var (
	runBlankLines   = regexp.MustCompile(`\n{3,}`)
	trailingBackref = regexp.MustCompile(`\\\n`)
)

// CleanText normalizes a remote document body before it is written to
// disk: runs of 3+ newlines collapse to a blank line, a stray backslash
// immediately before a newline is removed, and the result is trimmed of
// leading/trailing whitespace. This is the text-sanitation hook
// spec.md §1 treats as opaque and §9 flags as possibly lossy; it is kept
// faithful to the documented behavior rather than "fixed," since the
// source's intent there is an open question (see DESIGN.md).
func CleanText(s string) string {
	s = trailingBackref.ReplaceAllString(s, "\n")
	s = runBlankLines.ReplaceAllString(s, "\n\n")
	return trimEdges(s)
}

func trimEdges(s string) string {
	start := 0
	for start < len(s) && isSpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
