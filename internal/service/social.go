package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
)

type SocialService struct {
	icons repository.SocialIconRepository
}

func NewSocialService(icons repository.SocialIconRepository) *SocialService {
	return &SocialService{icons: icons}
}

type SocialInput struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type SocialPatch struct {
	Platform *string `json:"platform"`
	URL      *string `json:"url"`
}

func (s *SocialService) List(ctx context.Context, userID string) ([]model.SocialIcon, error) {
	icons, err := s.icons.ListIcons(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing: %w", err)
	}
	return icons, nil
}

func (s *SocialService) Create(ctx context.Context, userID string, in SocialInput) (*model.SocialIcon, error) {
	icon := &model.SocialIcon{UserID: userID, Platform: in.Platform, URL: in.URL}
	if err := validateIcon(icon); err != nil {
		return nil, err
	}
	if err := s.icons.CreateIcon(ctx, icon); err != nil {
		return nil, fmt.Errorf("service/social: creating: %w", err)
	}
	return icon, nil
}

func (s *SocialService) Update(ctx context.Context, userID, id string, p SocialPatch) (*model.SocialIcon, error) {
	icon, err := s.icons.GetIcon(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Platform != nil {
		icon.Platform = *p.Platform
	}
	if p.URL != nil {
		icon.URL = *p.URL
	}
	if err := validateIcon(icon); err != nil {
		return nil, err
	}
	if err := s.icons.UpdateIcon(ctx, icon); err != nil {
		return nil, fmt.Errorf("service/social: updating %s: %w", id, err)
	}
	return icon, nil
}

func (s *SocialService) Delete(ctx context.Context, userID, id string) error {
	if err := s.icons.DeleteIcon(ctx, userID, id); err != nil {
		return fmt.Errorf("service/social: deleting %s: %w", id, err)
	}
	return nil
}

func (s *SocialService) Reorder(ctx context.Context, userID string, ids []string) ([]model.SocialIcon, error) {
	if err := s.icons.ReorderIcons(ctx, userID, ids); err != nil {
		return nil, fmt.Errorf("service/social: reordering: %w", err)
	}
	return s.List(ctx, userID)
}

func validateIcon(icon *model.SocialIcon) error {
	icon.Platform = strings.ToLower(strings.TrimSpace(icon.Platform))
	if !model.ValidPlatform(icon.Platform) {
		return apperror.ValidationFailed("platform", fmt.Sprintf("unknown platform %q", icon.Platform))
	}

	raw := strings.TrimSpace(icon.URL)
	// A bare address for the email icon means mailto.
	if icon.Platform == "email" && raw != "" && !strings.Contains(raw, ":") {
		raw = "mailto:" + raw
	}
	u, err := normalizeURL("url", raw)
	if err != nil {
		return err
	}
	icon.URL = u
	return nil
}
