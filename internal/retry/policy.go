// Package retry implements the Retry Policy of §4.3: classify an error as
// retryable or fatal, then compute an exponential backoff with jitter,
// bounded by a maximum and capped by the caller's attempt budget.
package retry

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kilnforge/distill/internal/modelclient"
)

// Policy holds the tunables of §4.3.
type Policy struct {
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 500ms
	MaxBackoff  time.Duration // default 8s
}

// Default returns the spec's default policy.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
	}
}

// ShouldRetry reports whether attempt k (0-based) may be retried given the
// error just observed. Only TRANSIENT errors are retryable, and only while
// there is attempt budget left.
func (p Policy) ShouldRetry(k int, err error) bool {
	if k >= p.MaxAttempts-1 {
		return false
	}
	me, ok := modelclient.Classify(err)
	if !ok {
		return false
	}
	return me.Kind == modelclient.KindTransient
}

// Delay computes delay_k = min(base * 2^k * (1 + jitter), max_backoff),
// jitter ∈ [0, 0.25], honoring a server-supplied Retry-After hint (seconds)
// if it is larger than the computed delay.
func (p Policy) Delay(k int, retryAfterSeconds int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 8 * time.Second
	}

	// The deterministic 2^k growth, capped, computed via the ecosystem
	// backoff library rather than a hand-rolled loop.
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = maxBackoff
	eb.Reset()

	grown := base
	for i := 0; i <= k; i++ {
		next := eb.NextBackOff()
		if next == backoff.Stop {
			grown = maxBackoff
			break
		}
		grown = next
	}

	delay := time.Duration(float64(grown) * (1 + jitter()))
	if delay > maxBackoff {
		delay = maxBackoff
	}

	if retryAfterSeconds > 0 {
		hint := time.Duration(retryAfterSeconds) * time.Second
		if hint > delay {
			delay = hint
		}
	}

	return delay
}

// jitter returns a uniformly distributed value in [0, 0.25] using a
// cryptographically-seeded source so repeated calls across goroutines
// never share mutable rand state.
func jitter() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<20))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / float64(1<<20) * 0.25
}

// Sleep waits for d or until ctx is cancelled, returning ctx.Err() in the
// latter case so callers can distinguish a cancelled sleep from a
// completed one (§5 Suspension points; §8.7 cancellation liveness).
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
