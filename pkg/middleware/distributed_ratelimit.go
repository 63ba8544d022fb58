package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/observability"
)

// DistributedRateLimiter enforces one shared limit across every instance by
// counting requests in Redis fixed windows.
type DistributedRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter builds a Redis-backed limiter. prefix namespaces
// the keys, defaulting to "concord:ratelimit".
func NewDistributedRateLimiter(client *redis.Client, config RateLimitConfig, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "concord:ratelimit"
	}
	return &DistributedRateLimiter{client: client, config: config, prefix: prefix}
}

// Allow reports whether the caller is under the shared limit. Redis errors
// fail open: an unavailable limiter must not take the API down with it.
func (l *DistributedRateLimiter) Allow(ctx context.Context, key string) bool {
	windowKey := l.prefix + ":" + key + ":" +
		strconv.FormatInt(time.Now().Unix()/int64(l.config.Window.Seconds()), 10)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("rate limiter unavailable, allowing request")
		return true
	}
	return count.Val() <= int64(l.config.RequestsPerWindow)
}

// Middleware rejects callers over the shared limit with 429.
func (l *DistributedRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Context(), limiterKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.config.Window.Seconds())))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
