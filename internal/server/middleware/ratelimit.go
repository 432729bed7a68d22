package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// RateLimit returns middleware that limits each client IP to limit requests
// per window. A nil limiter uses an in-process sliding window. limit <= 0
// disables the middleware.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		limiter = NewLocalLimiter()
	}
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:api:" + extractClientIP(r)

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				// Fail open; a limiter outage must not take the API down.
				logger.WarnContext(r.Context(), "rate limiter failed",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocalLimiter is an in-process sliding-window domain.RateLimiter. Each key
// holds its recent hits and expires one window after its last hit, so idle
// clients are evicted by the cache janitor.
type LocalLimiter struct {
	mu    sync.Mutex
	cache *cache.Cache
	now   func() time.Time
}

// NewLocalLimiter creates an empty LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		cache: cache.New(cache.NoExpiration, time.Minute),
		now:   time.Now,
	}
}

// Allow implements domain.RateLimiter.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var hits []time.Time
	if v, ok := l.cache.Get(key); ok {
		hits = v.([]time.Time)
	}

	now := l.now()
	cutoff := now.Add(-window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) >= limit {
		l.cache.Set(key, hits, window)
		return false, nil
	}
	l.cache.Set(key, append(hits, now), window)
	return true, nil
}
