package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds how fast a single producer may publish events.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		client: client,
	}
}

// Check returns an error when the user exceeded maxRequests within window.
// Redis unavailability fails open: publishers are never blocked by an
// outage of the limiter itself.
func (rl *RateLimiter) Check(ctx context.Context, userID string, maxRequests int, window time.Duration) error {
	if rl.client == nil {
		return nil
	}

	key := fmt.Sprintf("ratelimit:publish:%s", userID)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}

	// Set expiration on first request
	if count == 1 {
		rl.client.Expire(ctx, key, window)
	}

	if count > int64(maxRequests) {
		return fmt.Errorf("rate limit exceeded: %d requests in %v", maxRequests, window)
	}

	return nil
}
