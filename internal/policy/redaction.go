package policy

import (
	"regexp"
	"strings"
)

// DefaultPreviewRunes bounds how much of a message reaches the logs.
const DefaultPreviewRunes = 80

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card before phone, otherwise long digit runs are classified as phone numbers.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// LogPreview returns a redacted, single-line excerpt of at most max runes
// suitable for log fields. Conversation text is never logged in full.
func LogPreview(text string, max int) string {
	if max <= 0 {
		max = DefaultPreviewRunes
	}
	out, _ := RedactPII(strings.Join(strings.Fields(text), " "))
	runes := []rune(out)
	if len(runes) <= max {
		return out
	}
	return string(runes[:max]) + "…"
}
