// Package logging provides sanitizers for values that routinely end up in
// log output: warehouse connection strings, driver and LLM provider errors,
// and SQL text. Log sites write through these helpers instead of raw values.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength caps how much SQL lands in a single log line.
	MaxQueryLogLength = 100
	// RedactedText replaces sensitive values in logged output.
	RedactedText = "[REDACTED]"
)

var (
	// password=..., pwd=..., pass=... in key/value connection strings,
	// up to the next delimiter. Covers the mssqldb DSN style.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Authorization bearer tokens. Provider client errors can echo the
	// request's auth header back.
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9._~+/-]+=*`)

	// key=... values long enough to be credentials rather than lookup keys.
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Bare provider secret keys (sk-..., sk-ant-...) pasted into messages.
	providerKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9-_]{16,}`)

	// user:pass@host credentials in URL-style connection strings. Covers
	// the pgx DSN style.
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a connection string so it
// can be logged at startup.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError scrubs an error message before logging. Driver errors repeat
// the DSN they failed to dial; provider errors can repeat auth material.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = providerKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeQuery bounds and scrubs a SQL query for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := query
	if len(sanitized) > MaxQueryLogLength {
		sanitized = sanitized[:MaxQueryLogLength] + "..."
	}

	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)

	return sanitized
}

// TruncateString truncates s to maxLen and appends an ellipsis if it was cut.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
