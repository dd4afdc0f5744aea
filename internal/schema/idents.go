package schema

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	uuidRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidateUUID checks the RFC 4122 shape and returns the lowercase form.
func (v *Validator) ValidateUUID(value, field string) (string, error) {
	if !uuidRe.MatchString(value) {
		return "", errf(field, "invalid UUID")
	}
	return strings.ToLower(value), nil
}

// ValidateEmail checks the address shape, runs the injection suite against it,
// and returns the lowercase form.
func (v *Validator) ValidateEmail(value, field string) (string, error) {
	if len(value) > 254 {
		return "", errf(field, "email exceeds maximum length")
	}
	if !emailRe.MatchString(value) {
		return "", errf(field, "invalid email address")
	}
	if detail := checkInjection(value); detail != "" {
		return "", suspectf(field, "input rejected: %s", detail)
	}
	return strings.ToLower(value), nil
}

// ValidateURL accepts only absolute http/https URLs. Under Production limits,
// loopback, private, and link-local hosts are blocked to close off SSRF into
// internal infrastructure.
func (v *Validator) ValidateURL(value, field string) (string, error) {
	if len(value) > v.limits.MaxStringLen {
		return "", errf(field, "URL exceeds maximum length")
	}

	u, err := url.Parse(value)
	if err != nil {
		return "", errf(field, "invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errf(field, "URL scheme must be http or https")
	}
	host := u.Hostname()
	if host == "" {
		return "", errf(field, "URL has no host")
	}

	if v.limits.Production {
		if isInternalHost(host) {
			return "", errf(field, "URL host not allowed")
		}
	}

	return value, nil
}

func isInternalHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".internal") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
