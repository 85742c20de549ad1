package model

import "time"

// SocialIcon is a platform badge shown above or below the link list.
type SocialIcon struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Platform  string    `json:"platform"`
	URL       string    `json:"url"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var platforms = map[string]bool{
	"instagram": true, "tiktok": true, "youtube": true, "x": true,
	"twitter": true, "facebook": true, "linkedin": true, "github": true,
	"twitch": true, "spotify": true, "soundcloud": true, "discord": true,
	"threads": true, "pinterest": true, "snapchat": true, "email": true,
	"website": true,
}

// ValidPlatform reports whether p is a platform the page knows an icon for.
func ValidPlatform(p string) bool {
	return platforms[p]
}
