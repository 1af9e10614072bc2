package interpreter

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy implements the exponential-backoff-with-jitter wrapper of
// spec.md §4.1. Zero value is not usable; use DefaultRetryPolicy.
type RetryPolicy struct {
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration
	Jitter      float64
	MaxAttempts int
	Logger      Logger
}

// DefaultRetryPolicy matches spec.md §4.1's defaults exactly.
func DefaultRetryPolicy(logger Logger) RetryPolicy {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return RetryPolicy{
		Initial:     1 * time.Second,
		Multiplier:  2,
		Max:         30 * time.Second,
		Jitter:      0.1,
		MaxAttempts: 4,
		Logger:      logger,
	}
}

// delayFor returns the delay before attempt k (0-indexed), deterministic
// part plus uniform jitter, matching "min(initial*multiplier^k, max) +
// uniform(0, jitter_factor*that)".
func (p RetryPolicy) delayFor(k int) time.Duration {
	base := float64(p.Initial) * math.Pow(p.Multiplier, float64(k))
	if base > float64(p.Max) {
		base = float64(p.Max)
	}
	jitter := rand.Float64() * p.Jitter * base
	return time.Duration(base + jitter)
}

// Do runs fn up to MaxAttempts times. classify is called with the error
// from each failed attempt to decide whether to retry; a Permanent verdict
// surfaces immediately without consuming remaining attempts.
func (p RetryPolicy) Do(ctx context.Context, opName string, fn func(ctx context.Context) error, classify func(error) Verdict) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		verdict := classify(err)
		p.Logger.Info("retry attempt", "op", opName, "attempt", attempt, "verdict", verdict, "error", err)
		if verdict == Permanent {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := p.delayFor(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
