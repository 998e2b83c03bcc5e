package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platterhq/platter/pkg/httputil"
	"github.com/platterhq/platter/pkg/observability"
)

// RateLimitConfig bounds how often one caller may hit the billing API.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig returns the per-user limit for billing endpoints.
// Mutating billing calls are expensive on the provider side, so the window
// is deliberately tight.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 30,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter is a Redis-backed fixed-window limiter shared across
// instances. Redis failures fail open: billing must stay reachable when
// the limiter's backend is not.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
	logger *observability.Logger
}

func NewRateLimiter(redisClient *redis.Client, config RateLimitConfig, logger *observability.Logger) *RateLimiter {
	if config.RequestsPerWindow <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		redis:  redisClient,
		config: config,
		prefix: "ratelimit:user",
		logger: logger,
	}
}

// Allow counts one request against key and reports whether it is within
// the window limit, along with the remaining quota.
func (rl *RateLimiter) Allow(r *http.Request, key string) (bool, int, error) {
	ctx := r.Context()
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	count := int(incr.Val())
	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.config.RequestsPerWindow, remaining, nil
}

// Reset clears the window for key.
func (rl *RateLimiter) Reset(r *http.Request, key string) error {
	return rl.redis.Del(r.Context(), fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}

// Handler enforces the limit per authenticated user, falling back to the
// client IP for requests that reach it unauthenticated.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := observability.GetUserID(r.Context())
		if key == "" {
			key = "ip:" + clientIP(r)
		}

		allowed, remaining, err := rl.Allow(r, key)
		if err != nil {
			rl.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.WindowDuration.Seconds())))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
