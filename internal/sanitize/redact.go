// Package sanitize scrubs session content before it leaves the store:
// wrapper tags injected by the client are stripped and credential-shaped
// strings are masked. The on-disk log is never modified.
package sanitize

import (
	"regexp"
	"strings"
)

var wrapperTagPattern = regexp.MustCompile(
	`</?(?:system-reminder|command-(?:output|name|args|message)|` +
		`local-command-(?:stdout|stderr)|tool-use-id|thinking)[^>]*>`,
)

// secretPatterns match credential formats commonly pasted into sessions.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),             // API secret keys
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),        // GitHub tokens
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),                  // AWS access key ids
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),      // Slack tokens
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{20,}`), // Authorization headers
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),    // PEM material
}

const mask = "[redacted]"

// StripTags removes client wrapper tags from text.
func StripTags(text string) string {
	return strings.TrimSpace(wrapperTagPattern.ReplaceAllString(text, ""))
}

// RedactSecrets masks credential-shaped substrings in text.
func RedactSecrets(text string) string {
	for _, p := range secretPatterns {
		text = p.ReplaceAllString(text, mask)
	}
	return text
}

// Clean applies both tag stripping and secret masking.
func Clean(text string) string {
	return RedactSecrets(StripTags(text))
}
