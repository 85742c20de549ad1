package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LinkType controls how a link renders on the public page.
type LinkType string

const (
	LinkClassic LinkType = "classic"
	LinkHeader  LinkType = "header" // section divider, no URL
	LinkMusic   LinkType = "music"
	LinkVideo   LinkType = "video"
	LinkEmbed   LinkType = "embed"
)

func (t LinkType) Valid() bool {
	switch t {
	case LinkClassic, LinkHeader, LinkMusic, LinkVideo, LinkEmbed:
		return true
	}
	return false
}

// RecoveryWindow is how long a soft-deleted link can be restored.
const RecoveryWindow = 30 * 24 * time.Hour

// Schedule is an optional visibility window. Either bound may be nil.
type Schedule struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the window (bounds inclusive).
func (s Schedule) Contains(t time.Time) bool {
	if s.Start != nil && t.Before(*s.Start) {
		return false
	}
	if s.End != nil && t.After(*s.End) {
		return false
	}
	return true
}

// Valid reports whether start <= end when both are set.
func (s Schedule) Valid() bool {
	return s.Start == nil || s.End == nil || !s.End.Before(*s.Start)
}

// Lifecycle is the soft-delete state of a link: either live, or deleted at
// a known instant. The zero value is live.
//
// JSON form:
//
//	{"state":"active"}
//	{"state":"deleted","deletedAt":"2026-01-02T15:04:05Z"}
type Lifecycle struct {
	deletedAt *time.Time
}

// Live is the lifecycle of a link that has not been deleted.
func Live() Lifecycle { return Lifecycle{} }

// DeletedOn is the lifecycle of a link soft-deleted at t.
func DeletedOn(t time.Time) Lifecycle {
	t = t.UTC()
	return Lifecycle{deletedAt: &t}
}

func (l Lifecycle) IsDeleted() bool { return l.deletedAt != nil }

// DeletedAt returns the deletion instant; ok is false for live links.
func (l Lifecycle) DeletedAt() (at time.Time, ok bool) {
	if l.deletedAt == nil {
		return time.Time{}, false
	}
	return *l.deletedAt, true
}

// Recoverable reports whether a deleted link can still be restored at now.
func (l Lifecycle) Recoverable(now time.Time) bool {
	return l.deletedAt != nil && now.Sub(*l.deletedAt) <= RecoveryWindow
}

// Expired reports whether a deleted link is past its recovery window.
func (l Lifecycle) Expired(now time.Time) bool {
	return l.deletedAt != nil && !l.Recoverable(now)
}

type lifecycleJSON struct {
	State     string     `json:"state"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (l Lifecycle) MarshalJSON() ([]byte, error) {
	if l.deletedAt == nil {
		return json.Marshal(lifecycleJSON{State: "active"})
	}
	return json.Marshal(lifecycleJSON{State: "deleted", DeletedAt: l.deletedAt})
}

func (l *Lifecycle) UnmarshalJSON(b []byte) error {
	var raw lifecycleJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.State {
	case "active", "":
		*l = Live()
	case "deleted":
		if raw.DeletedAt == nil {
			return fmt.Errorf("model: deleted lifecycle without deletedAt")
		}
		*l = DeletedOn(*raw.DeletedAt)
	default:
		return fmt.Errorf("model: unknown lifecycle state %q", raw.State)
	}
	return nil
}

// Link is one entry on a profile page.
//
// Position is dense and zero-based among the owner's live links. A
// soft-deleted link keeps the position it had when deleted; that value is
// only used as a hint when the link is restored.
type Link struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Type      LinkType  `json:"type"`
	Thumbnail string    `json:"thumbnail"`
	Position  int       `json:"position"`
	IsActive  bool      `json:"isActive"`
	Schedule  Schedule  `json:"schedule"`
	Clicks    int64     `json:"clicks"`
	Status    Lifecycle `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VisibleAt is the public visibility predicate: active, not deleted and
// inside its schedule window at t.
func (l *Link) VisibleAt(t time.Time) bool {
	return l.IsActive && !l.Status.IsDeleted() && l.Schedule.Contains(t)
}
