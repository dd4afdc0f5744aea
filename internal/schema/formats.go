package schema

import (
	"regexp"
	"strings"
)

// Allow-list charsets. Anything outside these is rejected outright, so the
// metacharacter checks below are a second line, not the only line.
var (
	pathAllowedChars = regexp.MustCompile(`^[a-zA-Z0-9._\-/ ]+$`)
	globAllowedChars = regexp.MustCompile(`^[a-zA-Z0-9._\-/ *?\[\]]+$`)
)

// Wildcards beyond this bound turn glob matching into a ReDoS vector.
const maxGlobWildcards = 4

// validatePathString enforces the path format: relative, traversal-free, no
// shell metacharacters, allow-list charset.
func validatePathString(s, field string) error {
	if strings.Contains(s, "..") {
		return suspectf(field, "path traversal sequence rejected")
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "\\") || hasDrivePrefix(s) {
		return errf(field, "absolute path rejected")
	}
	if strings.ContainsRune(s, 0) {
		return errf(field, "null byte in path")
	}
	if shellMetaChars.MatchString(s) {
		return suspectf(field, "shell metacharacter in path")
	}
	if !pathAllowedChars.MatchString(s) {
		return errf(field, "path contains disallowed characters")
	}
	return nil
}

// validateGlobString enforces the pattern format: path rules plus glob
// wildcards, capped in count.
func validateGlobString(s, field string) error {
	if strings.Contains(s, "..") {
		return suspectf(field, "path traversal sequence rejected")
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "\\") || hasDrivePrefix(s) {
		return errf(field, "absolute pattern rejected")
	}
	if shellMetaChars.MatchString(s) {
		return suspectf(field, "shell metacharacter in pattern")
	}
	if !globAllowedChars.MatchString(s) {
		return errf(field, "pattern contains disallowed characters")
	}
	wildcards := strings.Count(s, "*") + strings.Count(s, "?")
	if wildcards > maxGlobWildcards {
		return errf(field, "pattern exceeds %d wildcards", maxGlobWildcards)
	}
	return nil
}

func hasDrivePrefix(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var htmlEntityReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// encodeHTMLEntities neutralizes markup in html-format strings instead of
// rejecting them; the value survives, the tags do not.
func encodeHTMLEntities(s string) string {
	return htmlEntityReplacer.Replace(s)
}
