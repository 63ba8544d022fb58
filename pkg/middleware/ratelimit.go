package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
)

// RateLimitConfig bounds how fast one caller may hit the API.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed per window.
	RequestsPerWindow int
	// Window is the sliding window length.
	Window time.Duration
}

// DefaultRateLimitConfig allows 300 requests per minute per caller.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 300, Window: time.Minute}
}

// limiterKey identifies a caller: the actor ID when authenticated, the
// remote address otherwise.
func limiterKey(r *http.Request) string {
	if actor, ok := identity.ActorFromContext(r.Context()); ok {
		return "u:" + strconv.FormatInt(actor.ID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

type window struct {
	count int
	reset time.Time
}

// RateLimiter is a fixed-window in-process limiter. Suitable for a single
// instance; multi-instance deployments use the Redis-backed limiter.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewRateLimiter builds an in-process limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  config,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow reports whether the caller is under its limit, counting this
// request.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.reset) {
		l.windows[key] = &window{count: 1, reset: now.Add(l.config.Window)}
		l.pruneLocked(now)
		return true
	}
	w.count++
	return w.count <= l.config.RequestsPerWindow
}

// pruneLocked drops expired windows so the map stays bounded by the set of
// recently active callers.
func (l *RateLimiter) pruneLocked(now time.Time) {
	if len(l.windows) < 10000 {
		return
	}
	for key, w := range l.windows {
		if now.After(w.reset) {
			delete(l.windows, key)
		}
	}
}

// Middleware rejects callers over their limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(limiterKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.config.Window.Seconds())))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
