package logging

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Query parameter names whose values never reach the logs.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"auth",
	"session",
	"sig",
}

// Patterns for secrets users paste into chat text.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9]{20,})`),
	regexp.MustCompile(`(?i)(AIza[a-zA-Z0-9_-]{35})`),
	regexp.MustCompile(`(?i)(ghp_[a-zA-Z0-9]{36})`),
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{20,})`),
	regexp.MustCompile(`(?i)(key|token|secret|password|auth)[=:]["']?([a-zA-Z0-9+/=_-]{32,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// defaultPreviewRunes bounds message text written to debug logs.
const defaultPreviewRunes = 48

// Redact replaces secret-looking substrings in s.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// Preview returns a redacted, single-line, rune-bounded excerpt of a
// message body suitable for a log field.
func Preview(text string) string {
	text = strings.Join(strings.Fields(Redact(text)), " ")
	if utf8.RuneCountInString(text) <= defaultPreviewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:defaultPreviewRunes-1]) + "…"
}

// RedactURL hides credentials in a server URL: userinfo passwords and
// sensitive query parameters.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
		}
	}
	query := u.Query()
	changed := false
	for key := range query {
		if IsSensitiveField(key) {
			query.Set(key, RedactedValue)
			changed = true
		}
	}
	if changed {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
