package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/linkbio/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: 0, AllowedOrigins: []string{"http://localhost:3000"}, PublicURL: "http://localhost"},
		Database:  config.DatabaseConfig{URL: ":memory:"},
		Auth:      config.AuthConfig{JWTSecret: "server-test-secret-0123456789", TokenTTL: time.Hour},
		Tracking:  config.TrackingConfig{IPHashSalt: "salt", DedupWindow: 30 * time.Minute},
		Storage:   config.StorageConfig{MaxAvatarBytes: 1 << 20},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// client drives the router the way a browser dashboard would: JSON in,
// JSON out, bearer token once signed in.
type client struct {
	t     *testing.T
	h     http.Handler
	token string
}

func (c *client) call(method, path string, body any, out any) int {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "203.0.113.50:4000"
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

type link struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Clicks   int64  `json:"clicks"`
}

func titles(links []link) []string {
	out := []string{}
	for _, l := range links {
		out = append(out, l.Title)
	}
	return out
}

// =========================================================================
// END-TO-END
// =========================================================================

// Alice signs up, builds a page, deletes and restores a link, and a visitor
// views the page and clicks through.
func TestAlice_EndToEnd(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := &client{t: t, h: s.Handler()}
	visitor := &client{t: t, h: s.Handler()}

	var auth struct {
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusCreated, alice.call(http.MethodPost, "/api/auth/signup",
		map[string]string{"handle": "alice", "email": "alice@example.com", "password": "correct-horse"}, &auth))
	alice.token = auth.Token

	var a, b, c link
	require.Equal(t, http.StatusCreated, alice.call(http.MethodPost, "/api/links", map[string]string{"title": "A", "url": "a.example"}, &a))
	require.Equal(t, http.StatusCreated, alice.call(http.MethodPost, "/api/links", map[string]string{"title": "B", "url": "b.example"}, &b))
	require.Equal(t, http.StatusCreated, alice.call(http.MethodPost, "/api/links", map[string]string{"title": "C", "url": "c.example"}, &c))

	// Soft delete B: the rest close ranks.
	require.Equal(t, http.StatusNoContent, alice.call(http.MethodDelete, "/api/links/"+b.ID, nil, nil))
	var live []link
	alice.call(http.MethodGet, "/api/links", nil, &live)
	assert.Equal(t, []string{"A", "C"}, titles(live))
	assert.Equal(t, []int{0, 1}, []int{live[0].Position, live[1].Position})

	var page struct {
		Links []link `json:"links"`
	}
	require.Equal(t, http.StatusOK, visitor.call(http.MethodGet, "/api/public/profile/alice", nil, &page))
	assert.Equal(t, []string{"A", "C"}, titles(page.Links))

	// Restore puts B back where it was.
	require.Equal(t, http.StatusOK, alice.call(http.MethodPost, "/api/links/"+b.ID+"/restore", nil, nil))
	alice.call(http.MethodGet, "/api/links", nil, &live)
	assert.Equal(t, []string{"A", "B", "C"}, titles(live))

	// Visitor views twice (deduplicated) and clicks C once.
	var view struct {
		Recorded bool `json:"recorded"`
	}
	require.Equal(t, http.StatusOK, visitor.call(http.MethodPost, "/api/public/profile/alice/view", nil, &view))
	assert.True(t, view.Recorded)
	visitor.call(http.MethodPost, "/api/public/profile/alice/view", nil, &view)
	assert.False(t, view.Recorded)
	require.Equal(t, http.StatusNoContent, visitor.call(http.MethodPost, "/api/public/click/"+c.ID, nil, nil))

	var summary struct {
		Views  int64   `json:"views"`
		Clicks int64   `json:"clicks"`
		CTR    float64 `json:"ctr"`
	}
	require.Equal(t, http.StatusOK, alice.call(http.MethodGet, "/api/analytics/summary?range=24h", nil, &summary))
	assert.Equal(t, int64(1), summary.Views)
	assert.Equal(t, int64(1), summary.Clicks)
	assert.Equal(t, 100.0, summary.CTR)

	alice.call(http.MethodGet, "/api/links", nil, &live)
	assert.Equal(t, int64(1), live[2].Clicks)
}

// =========================================================================
// OPERATIONAL ROUTES
// =========================================================================

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "linkbio_http_requests_total")
	assert.True(t, strings.Contains(body, `route="/healthz"`), "requests are labelled by route pattern")
}

func TestGitHubRoutesOnlyWhenConfigured(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.NotEqual(t, http.StatusTemporaryRedirect, rec.Code)

	cfg := testConfig()
	cfg.Auth.GitHubClientID = "id"
	cfg.Auth.GitHubClientSecret = "secret"
	cfg.Auth.GitHubCallbackURL = "http://localhost/auth/github/callback"
	s = newTestServer(t, cfg)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "github.com/login/oauth/authorize")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/links", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

// =========================================================================
// RATE LIMITING
// =========================================================================

func hitPublic(s *Server, n int) []int {
	codes := make([]int, n)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/public/profile/ghost", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	return codes
}

func TestRateLimit_Local(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	s := newTestServer(t, cfg)

	codes := hitPublic(s, 3)
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	// One minute window: ceil(0.001*60) + 2 = 3 requests.
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	s := newTestServer(t, cfg)

	codes := hitPublic(s, 4)
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
	assert.NotEqual(t, http.StatusTooManyRequests, codes[2])
	assert.True(t, mr.Exists("linkbio:ratelimit:public:198.51.100.7"))
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.URL = "not a url"
	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
