package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/metrics"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
)

const (
	MaxLinkTitleLength = 100
	MaxThumbnailLength = 2048
)

// LinkService manages a user's links: CRUD, soft delete with a recovery
// window, and ordering. Every method is scoped to the caller's userID.
type LinkService struct {
	links   repository.LinkRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewLinkService(links repository.LinkRepository, m *metrics.Metrics, logger *slog.Logger) *LinkService {
	return &LinkService{links: links, metrics: m, logger: logger, now: time.Now}
}

// LinkInput creates a link. IsActive defaults to true.
type LinkInput struct {
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	Type      model.LinkType  `json:"type"`
	Thumbnail string          `json:"thumbnail"`
	IsActive  *bool           `json:"isActive"`
	Schedule  *model.Schedule `json:"schedule"`
}

// LinkPatch is a partial update: nil fields are left alone. A present
// Schedule replaces the whole window; send {} to clear it.
type LinkPatch struct {
	Title     *string         `json:"title"`
	URL       *string         `json:"url"`
	Type      *model.LinkType `json:"type"`
	Thumbnail *string         `json:"thumbnail"`
	IsActive  *bool           `json:"isActive"`
	Schedule  *model.Schedule `json:"schedule"`
}

func (s *LinkService) List(ctx context.Context, userID string) ([]model.Link, error) {
	links, err := s.links.ListLinks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/links: listing: %w", err)
	}
	return links, nil
}

// ListDeleted returns links still inside the recovery window. Links past
// it are waiting for the purge and can no longer be restored.
func (s *LinkService) ListDeleted(ctx context.Context, userID string) ([]model.Link, error) {
	links, err := s.links.ListDeletedLinks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/links: listing deleted: %w", err)
	}
	now := s.now()
	out := links[:0]
	for _, l := range links {
		if l.Status.Recoverable(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *LinkService) Get(ctx context.Context, userID, id string) (*model.Link, error) {
	return s.links.GetLink(ctx, userID, id)
}

func (s *LinkService) Create(ctx context.Context, userID string, in LinkInput) (*model.Link, error) {
	link := &model.Link{
		UserID:    userID,
		Title:     in.Title,
		URL:       in.URL,
		Type:      in.Type,
		Thumbnail: in.Thumbnail,
		IsActive:  true,
	}
	if link.Type == "" {
		link.Type = model.LinkClassic
	}
	if in.IsActive != nil {
		link.IsActive = *in.IsActive
	}
	if in.Schedule != nil {
		link.Schedule = *in.Schedule
	}

	if err := validateLink(link); err != nil {
		return nil, err
	}
	if err := s.links.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("service/links: creating: %w", err)
	}

	s.logger.Info("link created",
		slog.String("userID", userID),
		slog.String("linkID", link.ID),
	)
	return link, nil
}

func (s *LinkService) Update(ctx context.Context, userID, id string, p LinkPatch) (*model.Link, error) {
	link, err := s.links.GetLink(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if link.Status.IsDeleted() {
		return nil, apperror.NotFound("link", id)
	}

	if p.Title != nil {
		link.Title = *p.Title
	}
	if p.URL != nil {
		link.URL = *p.URL
	}
	if p.Type != nil {
		link.Type = *p.Type
	}
	if p.Thumbnail != nil {
		link.Thumbnail = *p.Thumbnail
	}
	if p.IsActive != nil {
		link.IsActive = *p.IsActive
	}
	if p.Schedule != nil {
		link.Schedule = *p.Schedule
	}

	if err := validateLink(link); err != nil {
		return nil, err
	}
	if err := s.links.UpdateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("service/links: updating %s: %w", id, err)
	}
	return link, nil
}

// Delete soft-deletes a link. It can be restored for model.RecoveryWindow.
func (s *LinkService) Delete(ctx context.Context, userID, id string) error {
	if err := s.links.SoftDeleteLink(ctx, userID, id, s.now()); err != nil {
		return fmt.Errorf("service/links: deleting %s: %w", id, err)
	}
	s.logger.Info("link deleted", slog.String("userID", userID), slog.String("linkID", id))
	return nil
}

// Restore brings a soft-deleted link back near its old position. Links
// past model.RecoveryWindow stay deleted.
func (s *LinkService) Restore(ctx context.Context, userID, id string) (*model.Link, error) {
	restored, err := s.links.RestoreLink(ctx, userID, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("service/links: restoring %s: %w", id, err)
	}
	s.logger.Info("link restored",
		slog.String("userID", userID),
		slog.String("linkID", id),
		slog.Int("position", restored.Position),
	)
	return restored, nil
}

// DeletePermanently removes a link (live or deleted) for good. Its
// analytics events are kept.
func (s *LinkService) DeletePermanently(ctx context.Context, userID, id string) error {
	if err := s.links.DeleteLinkPermanently(ctx, userID, id); err != nil {
		return fmt.Errorf("service/links: purging %s: %w", id, err)
	}
	return nil
}

func (s *LinkService) Reorder(ctx context.Context, userID string, ids []string) ([]model.Link, error) {
	if err := s.links.ReorderLinks(ctx, userID, ids); err != nil {
		return nil, fmt.Errorf("service/links: reordering: %w", err)
	}
	return s.List(ctx, userID)
}

// PurgeExpired permanently removes every link whose recovery window has
// passed. It is run by `linkbioctl purge`.
func (s *LinkService) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-model.RecoveryWindow)
	n, err := s.links.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("service/links: purging expired: %w", err)
	}
	s.metrics.Purged(n)
	s.logger.Info("expired links purged",
		slog.Int64("count", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}

// validateLink trims and checks a link in place.
func validateLink(l *model.Link) error {
	l.Title = strings.TrimSpace(l.Title)
	l.Thumbnail = strings.TrimSpace(l.Thumbnail)

	if !l.Type.Valid() {
		return apperror.ValidationFailed("type", fmt.Sprintf("unknown link type %q", l.Type))
	}
	if err := checkLength("title", l.Title, MaxLinkTitleLength); err != nil {
		return err
	}

	if l.Type == model.LinkHeader {
		// Headers are section dividers: a title and nothing to click.
		if l.Title == "" {
			return apperror.ValidationFailed("title", "header links need a title")
		}
		l.URL = ""
	} else {
		u, err := normalizeURL("url", l.URL)
		if err != nil {
			return err
		}
		l.URL = u
	}

	if l.Thumbnail != "" {
		if len(l.Thumbnail) > MaxThumbnailLength {
			return apperror.ValidationFailed("thumbnail", "thumbnail is too long")
		}
		if _, err := normalizeURL("thumbnail", l.Thumbnail); err != nil {
			return err
		}
	}

	if !l.Schedule.Valid() {
		return apperror.ValidationFailed("schedule", "schedule end must not be before its start")
	}
	return nil
}
