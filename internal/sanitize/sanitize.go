// Package sanitize cleans free text supplied by agents before it reaches the
// run log. Labels are stored in the CSV mirror of the log, so they are
// reduced to a single line of plain text.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLabelLength is the maximum allowed length for a run label.
const MaxLabelLength = 200

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reTripleBacktick matches triple (or more) backtick sequences used in code fences.
	reTripleBacktick = regexp.MustCompile("```+")

	// reWhitespace matches runs of whitespace, newlines included.
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Label sanitizes a run label (purpose or parameter description).
//
// The pipeline runs in this order:
//  1. Strip null bytes and ASCII control characters (tabs and newlines become spaces)
//  2. Strip XML/HTML tags
//  3. Collapse triple backticks to a single backtick
//  4. Collapse whitespace runs to one space and trim
//  5. Truncate to MaxLabelLength
func Label(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))

	if len(s) > MaxLabelLength {
		s = truncate(s, MaxLabelLength) + "..."
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F).
// Newlines and tabs are turned into spaces so words stay separated.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
