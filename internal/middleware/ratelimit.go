package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/sakif/linkbio/internal/metrics"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// =========================================================================
// REDIS LIMITER
// =========================================================================

// RedisLimiter is a fixed-window counter shared by every server instance:
// INCR the key, start the window's TTL on the first hit, reject once the
// count passes the limit. Both commands go out in one MULTI so a key never
// ends up counting without a TTL.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + ":" + key

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		// NX keeps the running window; it only applies to a key without a TTL.
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// =========================================================================
// IN-PROCESS LIMITER
// =========================================================================

// LocalLimiter keeps one token bucket per key in memory. It is used when
// no Redis URL is configured, so limits apply per instance.
//
// Buckets idle long enough to have refilled completely are dropped; a new
// bucket starts full, so eviction never changes a decision.
type LocalLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*localEntry
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type localEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

var _ Limiter = (*LocalLimiter)(nil)

// minIdle bounds how often the bucket map is swept.
const minIdle = time.Minute

func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	idle := minIdle
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	return l.get(key, now).AllowN(now, 1), nil
}

func (l *LocalLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.seen = now
	return e.lim
}

// sweep drops buckets not used for l.idle. Callers hold l.mu.
func (l *LocalLimiter) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.seen) >= l.idle {
			delete(l.limiters, k)
		}
	}
	l.lastSweep = now
}

// WindowFor converts a steady rate plus burst into the fixed-window limit
// RedisLimiter uses: the number of requests allowed per minute.
func WindowFor(rps float64, burst int) (int, time.Duration) {
	return int(math.Ceil(rps*60)) + burst, time.Minute
}

// =========================================================================
// MIDDLEWARE
// =========================================================================

// RateLimit rejects callers over the limit with 429. The key is the client
// IP, which chi's RealIP middleware has already resolved into RemoteAddr.
// If the limiter itself fails the request is let through: an outage of
// Redis must not take the public pages down.
func RateLimit(l Limiter, name string, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), name+":"+ClientIP(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				m.RequestRateLimited(name)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(60))
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate_limited","message":"too many requests, try again later"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP strips the port from RemoteAddr when there is one.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
