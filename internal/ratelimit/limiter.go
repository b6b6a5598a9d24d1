package ratelimit

import "context"

// RateLimiter throttles fan-out write throughput per bucket key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
