// Package sanitize provides text sanitization for values that end up in
// calendar documents and job sheets.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	inlineSpaceRe   = regexp.MustCompile(`[ \t\f\v]+`)
	anyWhitespaceRe = regexp.MustCompile(`\s+`)
	entityReplacer  = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"", "&#39;", "'")
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	// re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Line sanitizes a single-line value such as a city or customer name:
// tags are stripped and all whitespace runs collapse to one space.
func Line(s string) string {
	return strings.TrimSpace(anyWhitespaceRe.ReplaceAllString(StripHTML(s), " "))
}

// Text sanitizes free text such as notes and installer comments. Line breaks
// are kept (normalized to \n), other whitespace runs collapse.
func Text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(StripHTML(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpaceRe.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

// Field is Line followed by Truncate, for values stored in bounded columns.
func Field(s string, max int) string {
	return Truncate(Line(s), max)
}
