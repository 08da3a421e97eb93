package util

import "strings"

// SanitizeText strips bytes Postgres text columns reject from extracted case
// narratives. PDF extraction in particular leaves NUL bytes and stray control
// characters behind.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch {
		case ch == 0:
			// NUL is invalid in PostgreSQL text.
		case ch == '\n' || ch == '\r' || ch == '\t':
			b.WriteRune(ch)
		case ch < 0x20:
		default:
			b.WriteRune(ch)
		}
	}
	return strings.TrimSpace(b.String())
}
