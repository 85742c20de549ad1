package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/linkbio/internal/auth"
	"github.com/sakif/linkbio/internal/service"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

// AuthHandler serves signup, login and session endpoints plus the GitHub
// OAuth flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup / HandleLogin → issue a JWT as cookie and in the body
//   - HandleLogout               → clear the cookie
//   - HandleMe                   → the signed-in user
//   - HandleCheckHandle          → handle availability for the signup form
//   - HandleGitHubLogin/Callback → OAuth redirect dance
type AuthHandler struct {
	auth         *service.AuthService
	github       auth.GitHubAuthenticator // nil when GitHub login is not configured
	tokenTTL     time.Duration
	secureCookie bool
	appURL       string
	logger       *slog.Logger
}

// AuthHandlerConfig holds the cookie and redirect settings.
type AuthHandlerConfig struct {
	TokenTTL     time.Duration
	SecureCookie bool
	// AppURL is where the browser lands after GitHub login. Empty means "/".
	AppURL string
}

func NewAuthHandler(
	authService *service.AuthService,
	github auth.GitHubAuthenticator,
	cfg AuthHandlerConfig,
	logger *slog.Logger,
) *AuthHandler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	if cfg.AppURL == "" {
		cfg.AppURL = "/"
	}
	return &AuthHandler{
		auth:         authService,
		github:       github,
		tokenTTL:     cfg.TokenTTL,
		secureCookie: cfg.SecureCookie,
		appURL:       cfg.AppURL,
		logger:       logger,
	}
}

// HandleSignup creates a password account.
//
// HTTP: POST /api/auth/signup
// REQUEST BODY: {"handle":"alice","email":"alice@example.com","password":"..."}
// RESPONSE: 201 {"user":{...},"token":"<jwt>"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	Identifier string `json:"identifier"` // email or handle
	Password   string `json:"password"`
}

// HandleLogin signs in with email or handle plus password.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /api/auth/logout
//
// Tokens are stateless, so a copied token stays valid until it expires.
// Logout only removes the browser's copy.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/auth/me (auth required)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleCheckHandle reports whether a handle can be claimed.
//
// HTTP: GET /api/auth/handle/{handle}
// RESPONSE: {"handle":"alice","available":false,"reason":"handle is already taken"}
func (h *AuthHandler) HandleCheckHandle(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.CheckHandle(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGitHubLogin redirects to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Find or create the linkbio account
//  4. Set the JWT cookie and redirect into the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.appURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code ---
	code := q.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: "GitHub authentication failed"})
		return
	}

	// --- Step 3: Find or create the account ---
	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// --- Step 4: Cookie + redirect ---
	h.setTokenCookie(w, res.Token)
	http.Redirect(w, r, h.appURL, http.StatusSeeOther)
}

// setTokenCookie stores the JWT in an HttpOnly cookie that lives as long
// as the token.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
