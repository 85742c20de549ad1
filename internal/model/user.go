// Package model defines the data structures used throughout the application.
package model

import (
	"regexp"
	"strings"
	"time"
)

// Plan is the subscription tier of a profile owner.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Social icon placement on the public page.
const (
	IconsTop    = "top"
	IconsBottom = "bottom"
)

// ProfileSettings holds the per-profile toggles that used to live in an
// untyped settings blob. The sqlite repository stores it as a JSON column;
// everywhere else it is this struct.
type ProfileSettings struct {
	HideBranding       bool   `json:"hideBranding"`
	SensitiveContent   bool   `json:"sensitiveContent"`
	SEOTitle           string `json:"seoTitle"`
	SEODescription     string `json:"seoDescription"`
	SocialIconPosition string `json:"socialIconPosition"`
}

const (
	MaxSEOTitleLength       = 70
	MaxSEODescriptionLength = 160
)

// DefaultSettings is what a freshly created profile starts with.
func DefaultSettings() ProfileSettings {
	return ProfileSettings{SocialIconPosition: IconsTop}
}

// Validate reports the first invalid field as (field, message).
// An empty field means the settings are valid.
func (s ProfileSettings) Validate() (field, message string) {
	switch {
	case s.SocialIconPosition != IconsTop && s.SocialIconPosition != IconsBottom:
		return "settings.socialIconPosition", "social icon position must be top or bottom"
	case len(s.SEOTitle) > MaxSEOTitleLength:
		return "settings.seoTitle", "SEO title is too long"
	case len(s.SEODescription) > MaxSEODescriptionLength:
		return "settings.seoDescription", "SEO description is too long"
	}
	return "", ""
}

// User is a profile owner.
//
// Handle is the public identifier (linkb.io/<handle>). It is unique
// case-insensitively and always stored lowercase. Email and GitHubID are
// both optional because an account can be created by either signup path;
// the zero value means "not set" and is stored as NULL.
type User struct {
	ID           string          `json:"id"`
	Handle       string          `json:"handle"`
	Email        string          `json:"email,omitempty"`
	PasswordHash string          `json:"-"`
	GitHubID     int64           `json:"githubId,omitempty"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	AvatarURL    string          `json:"avatarUrl"`
	Theme        string          `json:"theme"`
	ButtonStyle  string          `json:"buttonStyle"`
	Font         string          `json:"font"`
	Background   string          `json:"background"`
	Settings     ProfileSettings `json:"settings"`
	Plan         Plan            `json:"plan"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

const (
	MinHandleLength = 3
	MaxHandleLength = 30
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_.]+$`)

// reservedHandles collide with top-level routes of the web app.
var reservedHandles = map[string]bool{
	"admin": true, "api": true, "app": true, "auth": true, "dashboard": true,
	"help": true, "login": true, "logout": true, "metrics": true, "settings": true,
	"signup": true, "static": true, "support": true, "healthz": true,
}

// NormalizeHandle lowercases and trims a handle. Handles compare
// case-insensitively, so every lookup goes through this first.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// ValidateHandle checks an already normalized handle. It returns an empty
// string when the handle is acceptable, otherwise the reason it is not.
func ValidateHandle(h string) string {
	switch {
	case len(h) < MinHandleLength || len(h) > MaxHandleLength:
		return "handle must be between 3 and 30 characters"
	case !handlePattern.MatchString(h):
		return "handle may only contain letters, numbers, underscores and dots"
	case strings.HasPrefix(h, ".") || strings.HasSuffix(h, "."):
		return "handle cannot start or end with a dot"
	case reservedHandles[h]:
		return "handle is reserved"
	}
	return ""
}
