// Package rate throttles calls made against shared endpoints.
package rate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter gates operations that share a key.
type Limiter interface {
	// Allow reports whether an operation for key may proceed now, consuming
	// a token when it may.
	Allow(key string) (bool, error)

	// Wait blocks until an operation for key may proceed or ctx is done.
	Wait(ctx context.Context, key string) error
}

// NewRPCLimiter returns the limiter guarding an RPC endpoint. A
// non-positive requestsPerSecond disables limiting.
func NewRPCLimiter(requestsPerSecond float64) Limiter {
	if requestsPerSecond <= 0 {
		return Unlimited{}
	}
	return NewBucketLimiter(rate.Limit(requestsPerSecond))
}

// BucketLimiter keeps an in-memory token bucket per key. Buckets hold one
// second's worth of tokens, and never fewer than one.
type BucketLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewBucketLimiter(limit rate.Limit) *BucketLimiter {
	return &BucketLimiter{
		limit:   limit,
		burst:   max(int(limit), 1),
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *BucketLimiter) Allow(key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

func (l *BucketLimiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

func (l *BucketLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Unlimited lets everything through. Wait still honours cancellation.
type Unlimited struct{}

func (Unlimited) Allow(string) (bool, error) {
	return true, nil
}

func (Unlimited) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}
