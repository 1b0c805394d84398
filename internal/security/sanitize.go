package security

import (
	"html"
	"regexp"
	"strings"
)

// MaxMessageLength is the longest message accepted, in runes.
const MaxMessageLength = 1000

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?is)javascript:`),
	regexp.MustCompile(`(?is)on\w+\s*=`),
	regexp.MustCompile(`(?is)data:text/html`),
}

func stripDangerous(text string) string {
	for _, p := range dangerousPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return text
}

// Sanitize makes raw user input safe to process: it truncates to MaxMessageLength runes,
// strips script tags, event handlers and script URIs, escapes HTML, drops NUL bytes and
// collapses whitespace.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	if r := []rune(text); len(r) > MaxMessageLength {
		text = string(r[:MaxMessageLength])
	}
	text = stripDangerous(text)
	text = html.EscapeString(text)
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.Join(strings.Fields(text), " ")
}

// SanitizeForDisplay is the lighter pass for text echoed back to a browser: dangerous markup
// and NUL bytes are removed but formatting is kept.
func SanitizeForDisplay(text string) string {
	if text == "" {
		return ""
	}
	text = stripDangerous(text)
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
