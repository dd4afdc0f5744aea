package schema

import "regexp"

// Pre-compiled injection patterns — compiled once at startup, never during a
// request. Free-form strings (no format, not enum members) are scanned against
// every class; the first match rejects the value.
var injectionPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	// SQL
	{regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|ALTER|UNION|TRUNCATE)\b.*\b(FROM|INTO|TABLE|SET|WHERE|ALL)\b`), "SQL injection"},
	{regexp.MustCompile(`(?i)('|")\s*(OR|AND)\s+('|")?\d`), "SQL boolean injection"},
	{regexp.MustCompile(`(?i);\s*(DROP|DELETE|TRUNCATE|ALTER)\b`), "stacked SQL statement"},
	{regexp.MustCompile(`--\s*$`), "SQL comment terminator"},

	// NoSQL
	{regexp.MustCompile(`\$(where|ne|gt|gte|lt|lte|regex|in|nin|or|and|not|exists)\b`), "NoSQL operator injection"},
	{regexp.MustCompile(`(?i){\s*"\$`), "NoSQL operator object"},

	// XSS
	{regexp.MustCompile(`(?i)<\s*script\b`), "XSS script tag"},
	{regexp.MustCompile(`(?i)<\s*iframe\b`), "XSS iframe tag"},
	{regexp.MustCompile(`(?i)javascript\s*:`), "XSS javascript URI"},
	{regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus|blur|submit)\s*=`), "XSS event handler"},
	{regexp.MustCompile(`(?i)data\s*:\s*text/html`), "XSS data URI"},

	// Command
	{regexp.MustCompile(`(?i);\s*(rm|cat|curl|wget|chmod|chown|sudo|bash|sh|exec|nc)\b`), "command injection"},
	{regexp.MustCompile(`(?i)(\||&&)\s*(rm|cat|curl|wget|chmod|chown|sudo|bash|sh)\b`), "command injection (pipe/chain)"},
	{regexp.MustCompile(`\$\(.*\)`), "command substitution"},
	{regexp.MustCompile("`[^`]*`"), "backtick command execution"},
}

// Shell metacharacters that never belong in a path or glob argument.
var shellMetaChars = regexp.MustCompile("[;&|<>$`\\\\]")

// checkInjection scans s against all pattern classes and returns the detail
// of the first match, or "" when clean.
func checkInjection(s string) string {
	for _, p := range injectionPatterns {
		if p.re.MatchString(s) {
			return p.detail
		}
	}
	return ""
}
