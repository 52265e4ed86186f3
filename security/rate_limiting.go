package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter kept in Redis. Each key may be used
// limit times per window.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		redis:  redisClient,
		prefix: strings.TrimSuffix(prefix, ":"),
		limit:  int64(limit),
		window: window,
	}
}

func (r *RateLimiter) key(id string) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

// Allow counts one use of key and reports whether it is still within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := r.key(key)
	count, err := r.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, k, r.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expiry %s: %w", key, err)
		}
	}
	return count <= r.limit, nil
}
