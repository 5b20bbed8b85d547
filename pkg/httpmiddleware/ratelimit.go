package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max requests allowed per window.
	Max int
	// Window duration.
	Window time.Duration
	// KeyFunc extracts the limit key from a request. Defaults to client IP.
	KeyFunc func(*http.Request) string
}

// window tracks counts over two adjacent intervals; the previous interval is
// weighted by its overlap with the sliding window.
type window struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

type rateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	windows map[string]*window
}

func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, found := rl.windows[key]
	if !found {
		w = &window{currStart: now}
		rl.windows[key] = w
	}

	if now.Sub(w.currStart) >= rl.cfg.Window {
		w.prevCount, w.prevStart = w.currCount, w.currStart
		w.currCount = 0
		w.currStart = now.Truncate(rl.cfg.Window)
		if now.Sub(w.prevStart) >= 2*rl.cfg.Window {
			w.prevCount = 0
		}
	}

	overlap := 1.0 - now.Sub(w.currStart).Seconds()/rl.cfg.Window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	effective := w.prevCount*overlap + w.currCount
	resetAt = w.currStart.Add(rl.cfg.Window)

	if effective >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}

	w.currCount++
	remaining = int(float64(rl.cfg.Max) - effective - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

func (rl *rateLimiter) evictStale(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if now.Sub(w.currStart) >= 2*rl.cfg.Window {
			delete(rl.windows, key)
		}
	}
}

// RateLimit enforces a per-key sliding window limit. Over-limit requests get
// 429 with a JSON body; every response carries X-RateLimit-* headers. This
// variant never evicts idle keys; use RateLimitWithCleanup for long-running
// servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitWith(newRateLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// stale keys until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.evictStale(now)
			}
		}
	}()
	return limitWith(rl)
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &rateLimiter{cfg: cfg, windows: make(map[string]*window)}
}

func limitWith(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := rl.allow(rl.cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := time.Until(resetAt)
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the caller's IP: X-Forwarded-For first entry, then
// X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
