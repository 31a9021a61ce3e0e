// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by every instance through Redis.
type RateLimiter struct {
	client redis.UniversalClient
}

func NewRateLimiter(client redis.UniversalClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow counts one attempt for key and reports whether it is within limit for the current
// window, together with the attempts left.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := rateKey(key)

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment attempts: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set attempt window: %w", err)
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, nil
}

func rateKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}
