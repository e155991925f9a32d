package util

import (
	"regexp"
	"strings"
)

// emailRegex is intentionally loose: local part, a single @, and a dotted domain.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail reports whether email looks like a deliverable address.
func ValidateEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
