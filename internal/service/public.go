package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/metrics"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
	"github.com/sakif/linkbio/internal/tracking"
)

// DefaultDedupWindow is how long a repeat view from the same client is
// suppressed.
const DefaultDedupWindow = 30 * time.Minute

const (
	maxReferrerLength  = 2048
	maxUserAgentLength = 512
)

// PublicService serves the anonymous side of the product: resolving a
// handle to its page and recording views and clicks.
type PublicService struct {
	users       repository.UserRepository
	links       repository.LinkRepository
	icons       repository.SocialIconRepository
	events      repository.AnalyticsRepository
	salt        string
	dedupWindow time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// PublicDeps groups PublicService's collaborators; there are enough of
// them that positional arguments would be error-prone.
type PublicDeps struct {
	Users       repository.UserRepository
	Links       repository.LinkRepository
	Icons       repository.SocialIconRepository
	Events      repository.AnalyticsRepository
	Salt        string
	DedupWindow time.Duration
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func NewPublicService(d PublicDeps) *PublicService {
	if d.DedupWindow <= 0 {
		d.DedupWindow = DefaultDedupWindow
	}
	return &PublicService{
		users:       d.Users,
		links:       d.Links,
		icons:       d.Icons,
		events:      d.Events,
		salt:        d.Salt,
		dedupWindow: d.DedupWindow,
		metrics:     d.Metrics,
		logger:      d.Logger,
		now:         time.Now,
	}
}

// PublicProfile is what an anonymous visitor sees. It deliberately omits
// ids, emails, counters and private settings.
type PublicProfile struct {
	Handle             string         `json:"handle"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	AvatarURL          string         `json:"avatarUrl"`
	Theme              string         `json:"theme"`
	ButtonStyle        string         `json:"buttonStyle"`
	Font               string         `json:"font"`
	Background         string         `json:"background"`
	SensitiveContent   bool           `json:"sensitiveContent"`
	SocialIconPosition string         `json:"socialIconPosition"`
	ShowBranding       bool           `json:"showBranding"`
	SEOTitle           string         `json:"seoTitle,omitempty"`
	SEODescription     string         `json:"seoDescription,omitempty"`
	Links              []PublicLink   `json:"links"`
	Socials            []PublicSocial `json:"socials"`
}

type PublicLink struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	URL       string         `json:"url,omitempty"`
	Type      model.LinkType `json:"type"`
	Thumbnail string         `json:"thumbnail,omitempty"`
}

type PublicSocial struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Visit carries the request facts an event is derived from. IP is only
// used to compute the client key and is never stored.
type Visit struct {
	IP        string
	Referrer  string
	UserAgent string
	Country   string
}

// Resolve returns the page for handle with the links visible right now,
// in position order.
func (s *PublicService) Resolve(ctx context.Context, handle string) (*PublicProfile, error) {
	user, err := s.users.GetUserByHandle(ctx, model.NormalizeHandle(handle))
	if err != nil {
		return nil, err
	}

	links, err := s.links.ListLinks(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/public: listing links for %s: %w", user.Handle, err)
	}
	icons, err := s.icons.ListIcons(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/public: listing icons for %s: %w", user.Handle, err)
	}

	p := &PublicProfile{
		Handle:             user.Handle,
		Title:              user.Title,
		Description:        user.Description,
		AvatarURL:          user.AvatarURL,
		Theme:              user.Theme,
		ButtonStyle:        user.ButtonStyle,
		Font:               user.Font,
		Background:         user.Background,
		SensitiveContent:   user.Settings.SensitiveContent,
		SocialIconPosition: user.Settings.SocialIconPosition,
		ShowBranding:       !(user.Settings.HideBranding && user.Plan == model.PlanPro),
		SEOTitle:           user.Settings.SEOTitle,
		SEODescription:     user.Settings.SEODescription,
		Links:              []PublicLink{},
		Socials:            make([]PublicSocial, 0, len(icons)),
	}

	// ListLinks is already ordered by position, created_at, id.
	now := s.now()
	for i := range links {
		l := &links[i]
		if !l.VisibleAt(now) {
			continue
		}
		p.Links = append(p.Links, PublicLink{
			ID:        l.ID,
			Title:     l.Title,
			URL:       l.URL,
			Type:      l.Type,
			Thumbnail: l.Thumbnail,
		})
	}
	for _, ic := range icons {
		p.Socials = append(p.Socials, PublicSocial{Platform: ic.Platform, URL: ic.URL})
	}
	return p, nil
}

// RecordView records a page view for handle unless the same client viewed
// it within the dedup window. A suppressed view is not an error; recorded
// reports which case happened.
func (s *PublicService) RecordView(ctx context.Context, handle string, v Visit) (recorded bool, err error) {
	user, err := s.users.GetUserByHandle(ctx, model.NormalizeHandle(handle))
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	ev := s.event(v, now)
	ev.UserID = user.ID
	ev.Kind = model.EventPageView

	recorded, err = s.events.RecordView(ctx, ev, now.Add(-s.dedupWindow))
	if err != nil {
		return false, fmt.Errorf("service/public: recording view for %s: %w", user.Handle, err)
	}
	if recorded {
		s.metrics.EventRecorded(string(model.EventPageView))
	} else {
		s.metrics.ViewDeduplicated()
	}
	return recorded, nil
}

// RecordClick records a click on a live link and bumps its counter. Every
// click counts; there is no dedup. Clicks on inactive or out-of-schedule
// links still count, since the visitor reached them through a cached page.
func (s *PublicService) RecordClick(ctx context.Context, linkID string, v Visit) error {
	// The link id travels in Details so a stale page can drop the link.
	if linkID == "" {
		return apperror.NotFound("link", linkID).With("linkId", linkID)
	}
	ev := s.event(v, s.now().UTC())
	ev.LinkID = linkID

	if err := s.events.RecordClick(ctx, ev); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("link", linkID).With("linkId", linkID)
		}
		return fmt.Errorf("service/public: recording click on %s: %w", linkID, err)
	}
	s.metrics.EventRecorded(string(model.EventLinkClick))
	return nil
}

func (s *PublicService) event(v Visit, at time.Time) *model.AnalyticsEvent {
	return &model.AnalyticsEvent{
		Referrer:         truncate(v.Referrer, maxReferrerLength),
		ReferrerCategory: tracking.ClassifyReferrer(v.Referrer),
		Device:           tracking.ClassifyDevice(v.UserAgent),
		UserAgent:        truncate(v.UserAgent, maxUserAgentLength),
		ClientKey:        tracking.ClientKey(v.IP, s.salt),
		Country:          v.Country,
		CreatedAt:        at,
	}
}
