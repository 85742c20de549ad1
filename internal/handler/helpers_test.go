package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/linkbio/internal/auth"
	"github.com/sakif/linkbio/internal/handler"
	sqliteRepo "github.com/sakif/linkbio/internal/repository/sqlite"
	"github.com/sakif/linkbio/internal/service"
	"github.com/sakif/linkbio/internal/storage"
)

const testSecret = "handler-test-secret-0123456789"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGitHub stands in for the OAuth provider.
type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (f *fakeGitHub) Exchange(context.Context, string) (*auth.GitHubUser, error) {
	return f.user, f.err
}

// api is the full handler set mounted on a chi router the way the server
// mounts it, minus rate limiting and metrics.
type api struct {
	db     *sqliteRepo.DB
	tokens *auth.TokenService
	github *fakeGitHub
	router chi.Router
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := discardLogger()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	gh := &fakeGitHub{}

	authSvc := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), logger)
	linkSvc := service.NewLinkService(db, nil, logger)
	profileSvc := service.NewProfileService(db, storage.DataURLStore{}, 1024, logger)
	socialSvc := service.NewSocialService(db)
	analyticsSvc := service.NewAnalyticsService(db, db)
	publicSvc := service.NewPublicService(service.PublicDeps{
		Users:  db,
		Links:  db,
		Icons:  db,
		Events: db,
		Salt:   "salt",
		Logger: logger,
	})

	authH := handler.NewAuthHandler(authSvc, gh, handler.AuthHandlerConfig{TokenTTL: time.Hour, AppURL: "/dashboard"}, logger)
	linkH := handler.NewLinkHandler(linkSvc, logger)
	profileH := handler.NewProfileHandler(profileSvc, logger)
	socialH := handler.NewSocialHandler(socialSvc)
	analyticsH := handler.NewAnalyticsHandler(analyticsSvc)
	publicH := handler.NewPublicHandler(publicSvc, logger)
	pageH, err := handler.NewPageHandler(publicSvc, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/auth/github/login", authH.HandleGitHubLogin)
	r.Get("/auth/github/callback", authH.HandleGitHubCallback)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authH.HandleSignup)
		r.Post("/auth/login", authH.HandleLogin)
		r.Post("/auth/logout", authH.HandleLogout)
		r.Get("/auth/handle/{handle}", authH.HandleCheckHandle)

		r.Get("/public/profile/{handle}", publicH.HandleProfile)
		r.Post("/public/profile/{handle}/view", publicH.HandleView)
		r.Post("/public/click/{linkId}", publicH.HandleClick)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/auth/me", authH.HandleMe)

			r.Get("/links", linkH.HandleList)
			r.Post("/links", linkH.HandleCreate)
			r.Get("/links/deleted", linkH.HandleListDeleted)
			r.Post("/links/reorder", linkH.HandleReorder)
			r.Put("/links/{id}", linkH.HandleUpdate)
			r.Delete("/links/{id}", linkH.HandleDelete)
			r.Post("/links/{id}/restore", linkH.HandleRestore)
			r.Delete("/links/{id}/permanent", linkH.HandleDeletePermanently)

			r.Get("/profile", profileH.HandleGet)
			r.Put("/profile", profileH.HandleUpdate)
			r.Post("/profile/avatar", profileH.HandleUploadAvatar)

			r.Get("/social", socialH.HandleList)
			r.Post("/social", socialH.HandleCreate)
			r.Post("/social/reorder", socialH.HandleReorder)
			r.Put("/social/{id}", socialH.HandleUpdate)
			r.Delete("/social/{id}", socialH.HandleDelete)

			r.Get("/analytics/summary", analyticsH.HandleSummary)
			r.Get("/analytics/links", analyticsH.HandleLinks)
			r.Get("/analytics/daily", analyticsH.HandleDaily)
		})
	})
	r.Get("/{handle}", pageH.HandlePage)

	return &api{db: db, tokens: tokens, github: gh, router: r}
}

// do sends a request through the router. body may be nil, a string (sent
// as-is) or any value (JSON-encoded).
func (a *api) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// signup creates an account and returns its token.
func (a *api) signup(t *testing.T, handle string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"handle":   handle,
		"email":    handle + "@example.com",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res struct {
		Token string `json:"token"`
	}
	decode(t, rec, &res)
	return res.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Field   string            `json:"field"`
	Details map[string]string `json:"details"`
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	decode(t, rec, &e)
	return e
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
