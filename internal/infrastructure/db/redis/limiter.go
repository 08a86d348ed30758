package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 10
	defaultWindow      = 15 * time.Minute
)

// AttemptLimiter implements ports.AttemptLimiter with a fixed-window counter
// per (scope, key). Key format: attempts:<scope>:<key>.
type AttemptLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// NewAttemptLimiter creates an AttemptLimiter wrapping the given Redis client.
// Non-positive max or window fall back to 10 attempts per 15 minutes.
func NewAttemptLimiter(client *redis.Client, max int64, window time.Duration) *AttemptLimiter {
	if max <= 0 {
		max = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &AttemptLimiter{client: client, max: max, window: window}
}

// Allow counts the attempt and reports whether it is within budget. The
// window starts at the first attempt and the counter expires with it.
func (l *AttemptLimiter) Allow(ctx context.Context, scope, key string) (bool, error) {
	k := fmt.Sprintf("attempts:%s:%s", scope, key)

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("attempt count: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("attempt window: %w", err)
		}
	}
	return n <= l.max, nil
}
