package service

// AuthService owns account creation and sign-in:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never sets cookies or reads requests; the handler turns an AuthResult
// into a cookie and a JSON body.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/auth"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
)

// errBadCredentials is deliberately the same for an unknown account and a
// wrong password.
var errBadCredentials = apperror.Unauthorized("invalid credentials")

type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type SignupInput struct {
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates a password account and signs it in.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	handle := model.NormalizeHandle(in.Handle)
	if reason := model.ValidateHandle(handle); reason != "" {
		return nil, apperror.ValidationFailed("handle", reason)
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		// Only the length limit can fail here.
		return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	// Checked up front so the caller learns which field collided; the
	// unique indexes still catch a concurrent signup.
	taken, err := s.users.HandleExists(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking handle: %w", err)
	}
	if taken {
		return nil, conflict("handle", "handle is already taken")
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, conflict("email", "email is already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	user := &model.User{
		Handle:       handle,
		Email:        email,
		PasswordHash: hash,
		Title:        "@" + handle,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("handle", user.Handle),
	)
	return s.issue(user)
}

// Login accepts an email address or a handle as the identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, errBadCredentials
	}

	var (
		user *model.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetUserByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.users.GetUserByHandle(ctx, model.NormalizeHandle(identifier))
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %q: %w", identifier, err)
	}

	// GitHub-only accounts have no password.
	if user.PasswordHash == "" {
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.String("userID", user.ID))
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	return s.issue(user)
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub user,
// creating it on first login. The handle is derived from the GitHub login
// and gets a random suffix when the plain form is taken or reserved.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	existing, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	if err == nil {
		return s.issue(existing)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up GitHub user %d: %w", gh.ID, err)
	}

	email := strings.ToLower(strings.TrimSpace(gh.Email))
	if email != "" {
		// An existing password account keeps its email; the GitHub account
		// is created without one rather than failing the login.
		if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
			email = ""
		}
	}

	title := gh.Name
	if title == "" {
		title = gh.Login
	}

	base := deriveHandle(gh.Login)
	for attempt := 0; attempt < 5; attempt++ {
		handle := base
		if attempt > 0 || model.ValidateHandle(base) != "" {
			handle = withSuffix(base)
		}

		taken, err := s.users.HandleExists(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("service/auth: checking handle: %w", err)
		}
		if taken {
			continue
		}

		user := &model.User{
			Handle:      handle,
			Email:       email,
			GitHubID:    gh.ID,
			Title:       truncate(title, MaxTitleLength),
			Description: truncate(gh.Bio, MaxDescriptionLength),
			AvatarURL:   gh.AvatarURL,
		}
		err = s.users.CreateUser(ctx, user)
		if errors.Is(err, apperror.ErrConflict) {
			// Lost a race for the handle.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service/auth: creating GitHub user %d: %w", gh.ID, err)
		}

		s.logger.Info("user registered via GitHub",
			slog.String("userID", user.ID),
			slog.String("handle", user.Handle),
			slog.String("login", gh.Login),
		)
		return s.issue(user)
	}
	return nil, fmt.Errorf("service/auth: no free handle for GitHub login %q", gh.Login)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// HandleAvailability answers "can I sign up with this handle?".
type HandleAvailability struct {
	Handle    string `json:"handle"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func (s *AuthService) CheckHandle(ctx context.Context, raw string) (*HandleAvailability, error) {
	handle := model.NormalizeHandle(raw)
	if reason := model.ValidateHandle(handle); reason != "" {
		return &HandleAvailability{Handle: handle, Reason: reason}, nil
	}
	taken, err := s.users.HandleExists(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking handle: %w", err)
	}
	res := &HandleAvailability{Handle: handle, Available: !taken}
	if taken {
		res.Reason = "handle is already taken"
	}
	return res, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}

// deriveHandle maps a GitHub login onto the handle alphabet. The result
// may still be too short or reserved; the caller adds a suffix then.
func deriveHandle(login string) string {
	var b strings.Builder
	for _, r := range model.NormalizeHandle(login) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	h := strings.Trim(b.String(), ".")
	if len(h) > model.MaxHandleLength {
		h = strings.TrimRight(h[:model.MaxHandleLength], ".")
	}
	if h == "" {
		h = "user"
	}
	return h
}

// withSuffix appends "_" and the last six characters of a fresh xid, which
// cover its counter, so consecutive calls differ.
func withSuffix(base string) string {
	if len(base) > model.MaxHandleLength-7 {
		base = base[:model.MaxHandleLength-7]
	}
	id := xid.New().String()
	return base + "_" + id[len(id)-6:]
}

func conflict(field, message string) *apperror.AppError {
	return &apperror.AppError{Err: apperror.ErrConflict, Message: message, Field: field}
}
