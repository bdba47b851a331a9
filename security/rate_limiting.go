package security

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles the reservation endpoints with a Redis fixed window
// keyed by authenticated user, falling back to client IP. Counting in Redis
// keeps the limit shared across processes.
type RateLimiter struct {
	redis     *redis.Client
	perMinute int
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{redis: redisClient, perMinute: perMinute}
}

// Wrap applies the limit in front of a route handler.
func (r *RateLimiter) Wrap(next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := fmt.Sprintf("ratelimit:ip:%s", e.RealIP())
		if e.Auth != nil {
			key = fmt.Sprintf("ratelimit:user:%s", e.Auth.Id)
		}

		ctx := e.Request.Context()
		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, time.Minute)
			}
			if count > int64(r.perMinute) {
				return e.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Rate limit exceeded. Please try again later.",
				})
			}
		}
		// A Redis hiccup fails open: throttling is protective, not critical.

		return next(e)
	}
}
