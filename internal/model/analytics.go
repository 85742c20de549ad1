package model

import "time"

type EventKind string

const (
	EventPageView  EventKind = "page_view"
	EventLinkClick EventKind = "link_click"
)

type ReferrerCategory string

const (
	ReferrerDirect ReferrerCategory = "direct"
	ReferrerSocial ReferrerCategory = "social"
	ReferrerSearch ReferrerCategory = "search"
	ReferrerOther  ReferrerCategory = "other"
)

type DeviceCategory string

const (
	DeviceMobile  DeviceCategory = "mobile"
	DeviceTablet  DeviceCategory = "tablet"
	DeviceDesktop DeviceCategory = "desktop"
	DeviceUnknown DeviceCategory = "unknown"
)

// AllDevices lists every device category; histograms report all of them.
var AllDevices = []DeviceCategory{DeviceMobile, DeviceTablet, DeviceDesktop, DeviceUnknown}

// AnalyticsEvent is an append-only record of a page view or link click.
// ClientKey is a salted hash of the visitor IP; the raw IP is never stored.
type AnalyticsEvent struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	LinkID           string           `json:"linkId,omitempty"`
	Kind             EventKind        `json:"kind"`
	Referrer         string           `json:"referrer"`
	ReferrerCategory ReferrerCategory `json:"referrerCategory"`
	Device           DeviceCategory   `json:"device"`
	UserAgent        string           `json:"userAgent"`
	ClientKey        string           `json:"-"`
	Country          string           `json:"country,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// CountEntry is one row of a top-N breakdown.
type CountEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// DailyPoint is one UTC day of the analytics series.
type DailyPoint struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Views  int64  `json:"views"`
	Clicks int64  `json:"clicks"`
}

// AnalyticsSummary is the dashboard payload for one owner and range.
type AnalyticsSummary struct {
	Range        string                   `json:"range"`
	From         *time.Time               `json:"from,omitempty"`
	To           time.Time                `json:"to"`
	Views        int64                    `json:"views"`
	Clicks       int64                    `json:"clicks"`
	CTR          float64                  `json:"ctr"`
	TopReferrers []CountEntry             `json:"topReferrers"`
	TopCountries []CountEntry             `json:"topCountries"`
	Devices      map[DeviceCategory]int64 `json:"devices"`
	Daily        []DailyPoint             `json:"daily"`
}

// LinkStat is per-link click performance inside a range.
type LinkStat struct {
	LinkID         string  `json:"linkId"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Clicks         int64   `json:"clicks"`
	LifetimeClicks int64   `json:"lifetimeClicks"`
	Share          float64 `json:"share"` // percent of all clicks in range
}
