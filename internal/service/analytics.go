package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
)

// Range is a dashboard time range preset.
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
	Range90d Range = "90d"
	RangeAll Range = "all"

	DefaultRange = Range7d
)

const (
	DefaultTopN = 5
	MaxTopN     = 50
	dayLayout   = "2006-01-02"
	day         = 24 * time.Hour
)

var rangeDays = map[Range]int{Range7d: 7, Range30d: 30, Range90d: 90}

// ParseRange accepts the presets above; an empty string means DefaultRange.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case "":
		return DefaultRange, nil
	case Range24h, Range7d, Range30d, Range90d, RangeAll:
		return r, nil
	}
	return "", apperror.ValidationFailed("range", fmt.Sprintf("unknown range %q: use 24h, 7d, 30d, 90d or all", s))
}

// AnalyticsService aggregates a user's events for the dashboard.
type AnalyticsService struct {
	events repository.AnalyticsRepository
	links  repository.LinkRepository
	now    func() time.Time
}

func NewAnalyticsService(events repository.AnalyticsRepository, links repository.LinkRepository) *AnalyticsService {
	return &AnalyticsService{events: events, links: links, now: time.Now}
}

// span is a resolved range: the query window plus the first calendar day
// of the series.
type span struct {
	window   repository.Window
	firstDay time.Time
}

// resolve turns a preset into concrete bounds.
//
//	24h         rolling 24 hours; the series covers the days it touches
//	7d/30d/90d  from UTC midnight of today-(N-1); the series has N days
//	all         no lower bound; the series starts on the first event's day
func (s *AnalyticsService) resolve(ctx context.Context, userID string, r Range) (span, error) {
	now := s.now().UTC()
	today := now.Truncate(day)

	switch r {
	case Range24h:
		from := now.Add(-day)
		return span{repository.Window{From: from, To: now}, from.Truncate(day)}, nil
	case RangeAll:
		first, ok, err := s.events.FirstEventAt(ctx, userID)
		if err != nil {
			return span{}, fmt.Errorf("service/analytics: first event: %w", err)
		}
		start := today
		if ok && first.Before(today) {
			start = first.UTC().Truncate(day)
		}
		return span{repository.Window{To: now}, start}, nil
	default:
		n := rangeDays[r]
		from := today.AddDate(0, 0, -(n - 1))
		return span{repository.Window{From: from, To: now}, from}, nil
	}
}

// Summary is the dashboard overview for one range. topN <= 0 means
// DefaultTopN.
func (s *AnalyticsService) Summary(ctx context.Context, userID string, r Range, topN int) (*model.AnalyticsSummary, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	topN = min(topN, MaxTopN)

	sp, err := s.resolve(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	w := sp.window

	views, clicks, err := s.events.CountEvents(ctx, userID, w)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: counting: %w", err)
	}
	referrers, err := s.events.Breakdown(ctx, userID, repository.ByReferrerCategory, w)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: referrers: %w", err)
	}
	countries, err := s.events.Breakdown(ctx, userID, repository.ByCountry, w)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: countries: %w", err)
	}
	devices, err := s.events.Breakdown(ctx, userID, repository.ByDevice, w)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: devices: %w", err)
	}
	daily, err := s.series(ctx, userID, sp)
	if err != nil {
		return nil, err
	}

	summary := &model.AnalyticsSummary{
		Range:        string(r),
		To:           w.To,
		Views:        views,
		Clicks:       clicks,
		CTR:          CTR(views, clicks),
		TopReferrers: topEntries(referrers, topN),
		TopCountries: topEntries(countries, topN),
		Devices:      deviceHistogram(devices),
		Daily:        daily,
	}
	if !w.From.IsZero() {
		from := w.From
		summary.From = &from
	}
	return summary, nil
}

// Daily returns only the zero-filled day series for a range.
func (s *AnalyticsService) Daily(ctx context.Context, userID string, r Range) ([]model.DailyPoint, error) {
	sp, err := s.resolve(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	return s.series(ctx, userID, sp)
}

// Links reports clicks per live link in the range, busiest first. Share is
// the link's percentage of all live-link clicks in the range.
func (s *AnalyticsService) Links(ctx context.Context, userID string, r Range) ([]model.LinkStat, error) {
	sp, err := s.resolve(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	links, err := s.links.ListLinks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: listing links: %w", err)
	}
	counts, err := s.events.LinkClicks(ctx, userID, sp.window)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: link clicks: %w", err)
	}

	var total int64
	for _, l := range links {
		total += counts[l.ID]
	}

	stats := make([]model.LinkStat, 0, len(links))
	for _, l := range links {
		st := model.LinkStat{
			LinkID:         l.ID,
			Title:          l.Title,
			URL:            l.URL,
			Clicks:         counts[l.ID],
			LifetimeClicks: l.Clicks,
		}
		if total > 0 {
			st.Share = round2(float64(st.Clicks) / float64(total) * 100)
		}
		stats = append(stats, st)
	}
	// Stable: ties keep position order.
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Clicks > stats[j].Clicks })
	return stats, nil
}

// series merges the sparse per-day counts into one entry per UTC day from
// firstDay through today.
func (s *AnalyticsService) series(ctx context.Context, userID string, sp span) ([]model.DailyPoint, error) {
	sparse, err := s.events.DailyCounts(ctx, userID, sp.window)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: daily counts: %w", err)
	}
	byDate := make(map[string]model.DailyPoint, len(sparse))
	for _, p := range sparse {
		byDate[p.Date] = p
	}

	last := sp.window.To.UTC().Truncate(day)
	out := make([]model.DailyPoint, 0, int(last.Sub(sp.firstDay)/day)+1)
	for d := sp.firstDay; !d.After(last); d = d.Add(day) {
		key := d.Format(dayLayout)
		p, ok := byDate[key]
		if !ok {
			p = model.DailyPoint{Date: key}
		}
		out = append(out, p)
	}
	return out, nil
}

// CTR is clicks per view as a percentage rounded to two decimals; zero
// when there are no views.
func CTR(views, clicks int64) float64 {
	if views == 0 {
		return 0
	}
	return round2(float64(clicks) / float64(views) * 100)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func topEntries(entries []model.CountEntry, n int) []model.CountEntry {
	if entries == nil {
		return []model.CountEntry{}
	}
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

// deviceHistogram always reports every device category, zero or not.
func deviceHistogram(entries []model.CountEntry) map[model.DeviceCategory]int64 {
	h := make(map[model.DeviceCategory]int64, len(model.AllDevices))
	for _, d := range model.AllDevices {
		h[d] = 0
	}
	for _, e := range entries {
		h[model.DeviceCategory(e.Key)] += e.Count
	}
	return h
}
