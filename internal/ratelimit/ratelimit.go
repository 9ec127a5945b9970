// Package ratelimit throttles clients with a Redis fixed-window counter.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"ctchen222/bookworm/internal/api/apperror"
	"ctchen222/bookworm/internal/api/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// MsgTooManyRequests is the body message of throttled responses.
const MsgTooManyRequests = "Too many requests, please try again later"

const keyPrefix = "bookworm:ratelimit:"

// Limiter counts hits per key within a fixed window.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// New creates a Limiter allowing limit hits per window and key.
func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{client: client, limit: limit, window: window}
}

// Allow records a hit for key. When the key is over its limit it returns false
// together with the time left in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.limit <= 0 {
		return true, 0, nil
	}
	key = keyPrefix + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to count hit: %w", err)
	}

	remaining := ttl.Val()
	if incr.Val() == 1 || remaining < 0 {
		if err := l.client.PExpire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set window expiry: %w", err)
		}
		remaining = l.window
	}

	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}
	return false, remaining, nil
}

// ClientKey is the counter key of a request: the scope and the client IP as
// resolved by the engine's trusted proxy settings.
func ClientKey(scope string, c *gin.Context) string {
	return scope + ":" + c.ClientIP()
}

// Middleware throttles requests per client IP. Redis failures let the request through.
func (l *Limiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := l.Allow(c.Request.Context(), ClientKey(scope, c))
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			response.Error(c, apperror.NewTooManyRequestsError(MsgTooManyRequests))
			return
		}
		c.Next()
	}
}
