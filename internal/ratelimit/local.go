package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// LocalRateLimiter is an in-process token bucket per key. It is the
// single-instance fallback for the Redis limiter and the default in tests.
type LocalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   int
}

var _ RateLimiter = (*LocalRateLimiter)(nil)

func NewLocalRateLimiter(perSec int) *LocalRateLimiter {
	if perSec <= 0 {
		perSec = 100
	}
	return &LocalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perSec:   perSec,
	}
}

func (l *LocalRateLimiter) limiter(key string) (*rate.Limiter, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[normalized]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.perSec), l.perSec)
		l.limiters[normalized] = limiter
	}
	return limiter, nil
}

func (l *LocalRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	limiter, err := l.limiter(key)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, key string) error {
	limiter, err := l.limiter(key)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return limiter.Wait(ctx)
}
