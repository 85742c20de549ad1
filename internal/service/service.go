// Package service contains the business rules of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, enforces ownership and lifecycle rules
//	Repository (data)  → reads and writes the database
//
// Services depend on repository interfaces, never on *sqlite.DB, and never
// see an http.Request. The same services back the HTTP API and the
// linkbioctl maintenance commands.
//
// Every service reads the time through its now field so tests can pin the
// clock (dedup windows, recovery windows, analytics ranges).
package service

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sakif/linkbio/internal/apperror"
)

const MaxURLLength = 2048

var allowedSchemes = map[string]bool{
	"http": true, "https": true, "mailto": true, "tel": true,
}

// normalizeURL trims the input, adds https:// when no scheme is present and
// accepts only web, mailto and tel URLs. field names the input in the
// validation error.
func normalizeURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperror.ValidationFailed(field, "url is required")
	}
	if len(raw) > MaxURLLength {
		return "", apperror.ValidationFailed(field, "url is too long")
	}

	lower := strings.ToLower(raw)
	if !strings.Contains(raw, "://") && !strings.HasPrefix(lower, "mailto:") && !strings.HasPrefix(lower, "tel:") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || !allowedSchemes[strings.ToLower(u.Scheme)] {
		return "", apperror.ValidationFailed(field, "url must be a valid http, https, mailto or tel URL")
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() == "" {
		return "", apperror.ValidationFailed(field, "url must include a host")
	}
	if (u.Scheme == "mailto" || u.Scheme == "tel") && u.Opaque == "" {
		return "", apperror.ValidationFailed(field, "url is incomplete")
	}
	return u.String(), nil
}

// checkLength validates a trimmed string against a rune limit.
func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apperror.ValidationFailed(field, field+" is too long")
	}
	return nil
}

// truncate caps untrusted request metadata before it is stored.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
