// internal/api/middleware/ratelimit.go
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements sliding-window rate limiting over Redis, keyed by
// provider id (webhook endpoints) with client IP as the fallback key.
type RateLimiter struct {
	client *redis.Client
	rps    int
	burst  int
	window time.Duration
	logger *slog.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, rps, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		rps:    rps,
		burst:  burst,
		window: time.Second,
		logger: logger,
	}
}

// Handler returns the rate limiting middleware. On Redis errors it fails
// open: dropping a provider webhook on an infrastructure blip would trade a
// duplicate-safe delivery for a lost one.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = key + ":" + host
		}

		allowed, remaining, err := rl.checkLimit(r.Context(), key)
		if err != nil {
			rl.logger.Warn("rate limiter redis error, failing open", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.rps))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkLimit applies the sliding window log algorithm atomically via a Redis
// pipeline.
func (rl *RateLimiter) checkLimit(ctx context.Context, key string) (allowed bool, remaining int, err error) {
	now := time.Now().UnixMilli()
	windowStart := now - rl.window.Milliseconds()
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: now})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*rl.window)

	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(countCmd.Val())
	remaining = rl.burst - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.burst, remaining, nil
}
