// Package ratelimiter throttles requests to remote metadata backends.
package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every request a store issues.
//
// A nil *Limiter never blocks, so stores can hold one unconditionally.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter allowing requestsPerSecond on average with bursts
// of up to burst requests. A non-positive rate disables limiting and yields
// nil. A burst below one defaults to one second worth of requests.
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = max(int(requestsPerSecond), 1)
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// Limit returns the sustained rate, or 0 for an unlimited limiter.
func (l *Limiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return float64(l.limiter.Limit())
}

// Burst returns the bucket size, or 0 for an unlimited limiter.
func (l *Limiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.limiter.Burst()
}
