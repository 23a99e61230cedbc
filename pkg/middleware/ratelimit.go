package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns limits for anonymous traffic.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
	}
}

// PerUserRateLimitConfig returns limits for authenticated users.
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter implements a fixed window counter in Redis so limits hold
// across process instances.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewRateLimiter creates a Redis-backed rate limiter.
func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RateLimiter{redis: redisClient, config: config, prefix: prefix}
}

// Allow checks and consumes one request for key.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.prefix + ":" + key

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// TTL returns the time until the window resets for key.
func (rl *RateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.prefix+":"+key).Result()
}

// RateLimitMiddleware applies per-principal request limits: authenticated
// users get the per-user budget keyed by user id, anonymous traffic gets
// the default budget keyed by client IP. Redis failures fail open; rate
// limiting is protection, not authorization.
type RateLimitMiddleware struct {
	userLimiter *RateLimiter
	anonLimiter *RateLimiter
	logger      *observability.Logger
}

// NewRateLimitMiddleware creates the rate limit middleware.
func NewRateLimitMiddleware(redisClient *redis.Client, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		userLimiter: NewRateLimiter(redisClient, PerUserRateLimitConfig(), "ratelimit:user"),
		anonLimiter: NewRateLimiter(redisClient, DefaultRateLimitConfig(), "ratelimit:anon"),
		logger:      logger,
	}
}

// Handler wraps an HTTP handler with rate limiting. Runs after TokenAuth
// so the principal is already resolved.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principal := contextkeys.GetPrincipal(ctx)
		var key string
		var limiter *RateLimiter
		if principal.Authenticated {
			key = "user:" + strconv.FormatInt(principal.ID, 10)
			limiter = m.userLimiter
		} else {
			key = "ip:" + clientIP(r)
			limiter = m.anonLimiter
		}

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			m.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			retryAfter := limiter.config.WindowDuration.Seconds()
			if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = ttl.Seconds()
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%.0f}`, retryAfter)
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
