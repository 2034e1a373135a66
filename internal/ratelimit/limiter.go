// Package ratelimit implements the token-bucket admission control that
// gates every outbound model call, per §4.2. Capacity is fixed at 1 (a
// "burst of one"); the bucket refills continuously at a configurable
// floating-point rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a cancellable token bucket. The zero value is not usable;
// construct with New. A nil *Limiter or one built with rate <= 0 is a
// permanent no-op, matching §4.2 ("when rate_limit_rps is unset, the
// limiter is a no-op").
type Limiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	tokens   float64
	capacity float64
	lastFill time.Time
	disabled bool
}

// New creates a limiter for the given requests-per-second rate. A
// non-positive rate disables throttling entirely.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{disabled: true}
	}
	return &Limiter{
		rate:     rps,
		tokens:   1,
		capacity: 1,
		lastFill: time.Now(),
	}
}

// Acquire blocks until a token is available, the context is cancelled, or
// the caller observes the limiter is disabled (returns immediately). On
// cancellation it returns ctx.Err() promptly, per the cancellation
// liveness property (§8.7).
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.disabled {
		return nil
	}

	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := l.waitForNextToken()
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// loop around and re-check; another waiter may have taken
			// the token refilled during our sleep.
		}
	}
}

// refill tops up the bucket based on elapsed wall time since the last
// refill. Must be called with l.mu held.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastFill = now
}

// waitForNextToken returns how long until the bucket holds >= 1 token.
// Must be called with l.mu held.
func (l *Limiter) waitForNextToken() time.Duration {
	deficit := 1 - l.tokens
	if deficit <= 0 {
		return 0
	}
	seconds := deficit / l.rate
	return time.Duration(seconds * float64(time.Second))
}
