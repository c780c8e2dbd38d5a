package rate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter limits operations based on a provided key.
type Limiter interface {
	// Allow reports whether an operation for key may happen now.
	Allow(key string) bool

	// Wait blocks until an operation for key may happen, or ctx is done.
	Wait(ctx context.Context, key string) error
}

type localRateLimiter struct {
	limit rate.Limit
	burst int

	sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalRateLimiter returns an in memory limiter allowing limit operations
// per second for each key.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}

	return &localRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *localRateLimiter) get(key string) *rate.Limiter {
	l.Lock()
	defer l.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow implements Limiter.Allow.
func (l *localRateLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Wait implements Limiter.Wait.
func (l *localRateLimiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}

// NoLimiter never limits operations
type NoLimiter struct {
}

// Allow implements Limiter.Allow.
func (n *NoLimiter) Allow(key string) bool {
	return true
}

// Wait implements Limiter.Wait.
func (n *NoLimiter) Wait(ctx context.Context, key string) error {
	return nil
}
