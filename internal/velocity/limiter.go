// Package velocity enforces short-window request-rate caps on resolved
// identities, backed by redis so the cap holds across gateway instances.
// Velocity is a burst heuristic, distinct from the daily quota.
package velocity

import (
	"context"
	"time"

	"github.com/screenlens/demo-gateway/internal/storage"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)

	Remaining(ctx context.Context, key string) (int, error)

	Limit() int

	Window() time.Duration
}

func NewLimiter(redis *storage.RedisClient, algorithm string, limit int, window time.Duration) Limiter {
	switch algorithm {
	case "token_bucket":
		refillRate := limit / int(window.Seconds())
		if refillRate == 0 {
			refillRate = 1
		}
		return NewTokenBucket(redis, limit, refillRate)
	case "fixed_window":
		return NewFixedWindow(redis, limit, window)
	default:
		return NewSlidingWindow(redis, limit, window)
	}
}
