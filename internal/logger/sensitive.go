package logger

import (
	"regexp"
	"strings"
)

// sensitiveDataPatterns match credentials that must never reach a log line.
// Source URLs carry auth_token in the query string and CRM calls carry a
// bearer token.
var sensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),
	regexp.MustCompile(`(?i)((auth_token|api_key|access_token|token|secret|passw(or)?d)=)([^&;,\s]+)`),
}

var sensitiveKeywords = []string{
	"password", "secret", "token", "authorization", "api_key", "apikey", "dsn",
}

// RedactSensitiveData replaces credentials in free text with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}
	return input
}

// isSensitiveKey reports whether a field key names a credential.
func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeywords {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
