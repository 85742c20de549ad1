package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
	"github.com/sakif/linkbio/internal/storage"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 300
	MaxFontLength        = 64
	MaxBackgroundLength  = 500

	DefaultMaxAvatarBytes = 2 << 20
)

var (
	themes = map[string]bool{
		"default": true, "light": true, "dark": true, "sunset": true,
		"ocean": true, "forest": true, "minimal": true, "custom": true,
	}
	buttonStyles = map[string]bool{
		"rounded": true, "square": true, "pill": true, "outline": true, "shadow": true,
	}
)

// ProfileService edits the owner's display and appearance settings.
type ProfileService struct {
	users          repository.UserRepository
	avatars        storage.AvatarStore
	maxAvatarBytes int64
	logger         *slog.Logger
}

func NewProfileService(users repository.UserRepository, avatars storage.AvatarStore, maxAvatarBytes int64, logger *slog.Logger) *ProfileService {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = DefaultMaxAvatarBytes
	}
	return &ProfileService{users: users, avatars: avatars, maxAvatarBytes: maxAvatarBytes, logger: logger}
}

// ProfilePatch is a partial update; nil fields are left alone. Settings,
// when present, replaces the whole settings object.
type ProfilePatch struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Theme       *string                `json:"theme"`
	ButtonStyle *string                `json:"buttonStyle"`
	Font        *string                `json:"font"`
	Background  *string                `json:"background"`
	Settings    *model.ProfileSettings `json:"settings"`
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *ProfileService) Update(ctx context.Context, userID string, p ProfilePatch) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		user.Title = strings.TrimSpace(*p.Title)
		if err := checkLength("title", user.Title, MaxTitleLength); err != nil {
			return nil, err
		}
	}
	if p.Description != nil {
		user.Description = strings.TrimSpace(*p.Description)
		if err := checkLength("description", user.Description, MaxDescriptionLength); err != nil {
			return nil, err
		}
	}
	if p.Theme != nil {
		if !themes[*p.Theme] {
			return nil, apperror.ValidationFailed("theme", fmt.Sprintf("unknown theme %q", *p.Theme))
		}
		user.Theme = *p.Theme
	}
	if p.ButtonStyle != nil {
		if !buttonStyles[*p.ButtonStyle] {
			return nil, apperror.ValidationFailed("buttonStyle", fmt.Sprintf("unknown button style %q", *p.ButtonStyle))
		}
		user.ButtonStyle = *p.ButtonStyle
	}
	if p.Font != nil {
		user.Font = strings.TrimSpace(*p.Font)
		if err := checkLength("font", user.Font, MaxFontLength); err != nil {
			return nil, err
		}
	}
	if p.Background != nil {
		user.Background = strings.TrimSpace(*p.Background)
		if err := checkLength("background", user.Background, MaxBackgroundLength); err != nil {
			return nil, err
		}
	}
	if p.Settings != nil {
		settings := *p.Settings
		if settings.SocialIconPosition == "" {
			settings.SocialIconPosition = model.IconsTop
		}
		if field, msg := settings.Validate(); field != "" {
			return nil, apperror.ValidationFailed(field, msg)
		}
		if settings.HideBranding && user.Plan != model.PlanPro {
			return nil, apperror.ValidationFailed("settings.hideBranding", "hiding branding requires the pro plan")
		}
		user.Settings = settings
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("service/profile: updating %s: %w", userID, err)
	}
	return user, nil
}

// UploadAvatar stores an image and points the profile at it. The format
// is sniffed from the bytes; the declared content type is ignored.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID string, data []byte) (*model.User, error) {
	if len(data) == 0 {
		return nil, apperror.ValidationFailed("avatar", "avatar file is empty")
	}
	if int64(len(data)) > s.maxAvatarBytes {
		return nil, apperror.ValidationFailed("avatar", fmt.Sprintf("avatar must be %d bytes or smaller", s.maxAvatarBytes))
	}
	contentType, ok := storage.SniffImage(data)
	if !ok {
		return nil, apperror.ValidationFailed("avatar", "avatar must be a PNG, JPEG, GIF or WebP image")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.avatars.PutAvatar(ctx, userID, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("service/profile: storing avatar: %w", err)
	}
	user.AvatarURL = url
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("service/profile: saving avatar url: %w", err)
	}

	s.logger.Info("avatar updated",
		slog.String("userID", userID),
		slog.String("contentType", contentType),
		slog.Int("bytes", len(data)),
	)
	return user, nil
}

// MaxAvatarBytes is the upload limit the handler enforces on the body.
func (s *ProfileService) MaxAvatarBytes() int64 {
	return s.maxAvatarBytes
}
