package utils

import (
	"strings"
	"time"
)

// MaskEmail hides the local part of an address, keeping its first and last
// characters: "jane@example.com" becomes "j**e@example.com". Values without
// an '@' mask to "***".
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if email == "" || !ok {
		return "***"
	}

	var masked string
	if len(local) <= 2 {
		masked = first(local) + "*"
	} else {
		masked = local[:1] + strings.Repeat("*", max(1, len(local)-2)) + local[len(local)-1:]
	}
	return masked + "@" + domain
}

func first(s string) string {
	if s == "" {
		return ""
	}
	return s[:1]
}

// ISO8601 formats t in UTC as RFC 3339, or returns nil for a nil time so
// JSON payloads carry null.
func ISO8601(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
