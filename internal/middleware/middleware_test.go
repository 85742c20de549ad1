package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/linkbio/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ok(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// =========================================================================
// LOGGER / METRICS
// =========================================================================

func TestLogger_RecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(logger))
	r.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	line := buf.String()
	assert.Contains(t, line, "status=418")
	assert.Contains(t, line, "bytes=15")
	assert.Contains(t, line, "path=/teapot")
	assert.Contains(t, line, "request_id=")
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/links/{id}", ok)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/links/"+id, nil))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/links/{id}", "200"))
	assert.Equal(t, 3.0, got)
}

// =========================================================================
// CORS
// =========================================================================

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(http.HandlerFunc(ok))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		req.Header.Set("Origin", "https://app.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/links", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", "PUT")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
		assert.Empty(t, rec.Body.String())
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "ok", rec.Body.String())
	})
}

// =========================================================================
// RATE LIMITING
// =========================================================================

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, "rl", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}
	allowed, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request in the window")

	allowed, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, allowed, "keys are independent")

	assert.Equal(t, time.Minute, mr.TTL("rl:1.2.3.4"))
	mr.FastForward(time.Minute)

	allowed, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed, "new window")
}

func TestRedisLimiter_KeyAlwaysGetsTTL(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, "rl", 3, time.Minute)
	ctx := context.Background()

	// A counter left behind without a TTL must not lock the client out.
	require.NoError(t, mr.Set("rl:stuck", "5"))
	allowed, err := l.Allow(ctx, "stuck")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, mr.TTL("rl:stuck"))

	mr.FastForward(time.Minute)
	allowed, err = l.Allow(ctx, "stuck")
	require.NoError(t, err)
	assert.True(t, allowed, "window reset")

	// Later hits keep the running window instead of extending it.
	mr.FastForward(20 * time.Second)
	_, err = l.Allow(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, mr.TTL("rl:stuck"))
}

func TestRedisLimiter_ServerDown(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, "rl", 1, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestLocalLimiter_Burst(t *testing.T) {
	// A near-zero refill rate makes the test independent of timing.
	l := NewLocalLimiter(0.0001, 2)
	ctx := context.Background()

	a, _ := l.Allow(ctx, "k")
	b, _ := l.Allow(ctx, "k")
	c, _ := l.Allow(ctx, "k")
	other, _ := l.Allow(ctx, "other")

	assert.True(t, a)
	assert.True(t, b)
	assert.False(t, c)
	assert.True(t, other)
}

func TestLocalLimiter_EvictsIdleBuckets(t *testing.T) {
	l := NewLocalLimiter(1, 2)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	a1, _ := l.Allow(ctx, "a")
	a2, _ := l.Allow(ctx, "a")
	a3, _ := l.Allow(ctx, "a")
	l.Allow(ctx, "b")
	assert.True(t, a1)
	assert.True(t, a2)
	assert.False(t, a3)

	now = now.Add(30 * time.Second)
	l.Allow(ctx, "c")
	assert.Len(t, l.limiters, 3, "no sweep before the idle period")

	now = now.Add(31 * time.Second)
	l.Allow(ctx, "c")
	assert.Len(t, l.limiters, 1, "idle buckets dropped")
	assert.Contains(t, l.limiters, "c")

	again, _ := l.Allow(ctx, "a")
	assert.True(t, again, "an evicted key starts with a full bucket")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("boom")
}

func TestRateLimit_Middleware(t *testing.T) {
	m := metrics.New()
	h := RateLimit(NewLocalLimiter(0.0001, 1), "public", m, discardLogger())(http.HandlerFunc(ok))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/public/click/x", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000").Code)

	rec := send("10.0.0.1:6000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same IP, different port")
	assert.Contains(t, rec.Body.String(), `"error":"rate_limited"`)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("public")))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, "auth", nil, discardLogger())(http.HandlerFunc(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWindowFor(t *testing.T) {
	limit, window := WindowFor(2, 10)
	assert.Equal(t, 130, limit)
	assert.Equal(t, time.Minute, window)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(req))

	req.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
