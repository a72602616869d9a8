// Package sanitize normalizes untrusted text before it reaches storage or
// queries. Cleaning is a pure function and idempotent: cleaning an already
// clean string returns it unchanged.
package sanitize

import (
	"html"
	"strings"
)

// Default per-field maximums, matching the record constraints.
const (
	MaxMessageLen       = 10000
	MaxStackLen         = 10000
	MaxErrorTypeLen     = 255
	MaxCorrelationIDLen = 100
	MaxTagKeyLen        = 64
	MaxTagValueLen      = 256
)

// Clean strips control characters, trims surrounding space, truncates to max
// runes, and HTML-encodes the result. Malformed input never fails; the
// best-effort cleaned value is always returned.
//
// Encoding goes through unescape-then-escape so that already-encoded text is
// not encoded twice, which is what makes Clean idempotent. Control characters
// are stripped after unescaping, so entity-encoded ones cannot slip through.
func Clean(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = html.UnescapeString(s)
	s = stripControl(s)
	s = strings.TrimSpace(s)
	s = truncate(s, max)
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// Message cleans a log message.
func Message(s string) string { return Clean(s, MaxMessageLen) }

// CorrelationID cleans a correlation id.
func CorrelationID(s string) string { return Clean(s, MaxCorrelationIDLen) }

// TagKey cleans a tag key.
func TagKey(s string) string { return Clean(s, MaxTagKeyLen) }

// TagValue cleans a tag value.
func TagValue(s string) string { return Clean(s, MaxTagValueLen) }

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
