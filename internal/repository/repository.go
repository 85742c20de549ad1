// Package repository declares the persistence contracts the service layer
// depends on. Implementations live in subpackages (sqlite).
//
// Every owner-scoped method takes the owner's userID and treats a row owned
// by someone else exactly like a missing row: apperror.ErrNotFound. That
// keeps "does this id exist" from leaking across accounts.
package repository

import (
	"context"
	"time"

	"github.com/sakif/linkbio/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByHandle(ctx context.Context, handle string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	UpdateProfile(ctx context.Context, user *model.User) error
}

type LinkRepository interface {
	// CreateLink appends the link after the owner's live links.
	CreateLink(ctx context.Context, link *model.Link) error
	GetLink(ctx context.Context, userID, id string) (*model.Link, error)
	// ListLinks returns live links ordered by position.
	ListLinks(ctx context.Context, userID string) ([]model.Link, error)
	ListDeletedLinks(ctx context.Context, userID string) ([]model.Link, error)
	UpdateLink(ctx context.Context, link *model.Link) error
	// SoftDeleteLink marks the link deleted and renumbers the rest.
	SoftDeleteLink(ctx context.Context, userID, id string, at time.Time) error
	// RestoreLink reinserts a soft-deleted link at min(old position, live count).
	// It fails with a validation error once the link's recovery window has
	// passed at now.
	RestoreLink(ctx context.Context, userID, id string, now time.Time) (*model.Link, error)
	DeleteLinkPermanently(ctx context.Context, userID, id string) error
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ReorderLinks(ctx context.Context, userID string, ids []string) error
}

type SocialIconRepository interface {
	CreateIcon(ctx context.Context, icon *model.SocialIcon) error
	GetIcon(ctx context.Context, userID, id string) (*model.SocialIcon, error)
	ListIcons(ctx context.Context, userID string) ([]model.SocialIcon, error)
	UpdateIcon(ctx context.Context, icon *model.SocialIcon) error
	DeleteIcon(ctx context.Context, userID, id string) error
	ReorderIcons(ctx context.Context, userID string, ids []string) error
}

// Window bounds an analytics query. A zero From means "since the beginning".
type Window struct {
	From time.Time
	To   time.Time
}

// Dimension is a column a page-view breakdown can be grouped by.
type Dimension string

const (
	ByReferrerCategory Dimension = "referrer_category"
	ByCountry          Dimension = "country"
	ByDevice           Dimension = "device"
)

type AnalyticsRepository interface {
	// RecordView inserts a page view unless the same client already has one
	// for this owner at or after dedupSince. It reports whether it inserted.
	RecordView(ctx context.Context, event *model.AnalyticsEvent, dedupSince time.Time) (bool, error)
	// RecordClick inserts a link-click event and increments the link counter
	// atomically. event.UserID is filled from the link's owner.
	RecordClick(ctx context.Context, event *model.AnalyticsEvent) error
	CountEvents(ctx context.Context, userID string, w Window) (views, clicks int64, err error)
	// Breakdown counts page views per value of dim, largest first.
	Breakdown(ctx context.Context, userID string, dim Dimension, w Window) ([]model.CountEntry, error)
	// DailyCounts returns only the UTC days that have events.
	DailyCounts(ctx context.Context, userID string, w Window) ([]model.DailyPoint, error)
	LinkClicks(ctx context.Context, userID string, w Window) (map[string]int64, error)
	FirstEventAt(ctx context.Context, userID string) (time.Time, bool, error)
}
