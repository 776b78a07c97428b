// Package retry implements bounded exponential backoff with jitter for
// transient failures on external calls (model API, database pools)
package retry

import (
	"context"
	"math/rand"
	"time"

	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
)

// Policy describes a retry schedule. Policies are data, not annotations;
// callers pass them alongside the operation
type Policy struct {
	// MaxRetries is the number of retries after the first attempt,
	// so an op runs at most MaxRetries+1 times
	MaxRetries int

	// InitialDelay seeds the backoff schedule
	InitialDelay time.Duration

	// MaxDelay caps any single sleep
	MaxDelay time.Duration

	// Base is the exponential base; 0 means 2
	Base float64

	// Jitter scales each sleep by (0.5 + U[0,1)) to avoid thundering herds
	Jitter bool

	// RetryIf decides whether an error is worth retrying; nil means
	// perr.Retryable. Errors outside the predicate propagate immediately
	RetryIf func(error) bool
}

// DefaultPolicy mirrors the schedule used for model API calls
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Base:         2,
		Jitter:       true,
	}
}

// randFloat is a seam for deterministic jitter in tests
var randFloat = rand.Float64

// Do runs op under the policy. On a retryable error it sleeps
// min(initial*base^attempt, max), jittered when enabled, and tries again.
// The last error surfaces once retries are exhausted. Sleeps observe ctx
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = perr.Retryable
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if !retryIf(err) {
			return zero, err
		}
		lastErr = err

		if attempt == p.MaxRetries {
			logger.C(ctx).Error().
				Err(err).
				Int("retries", p.MaxRetries).
				Msg("all retries exhausted")
			break
		}

		d := Delay(p, attempt)
		logger.C(ctx).Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", p.MaxRetries).
			Dur("sleep", d).
			Msg("retrying after transient error")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(d):
		}
	}
	return zero, lastErr
}

// Delay computes the sleep before retry number attempt (0-based)
func Delay(p Policy, attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 2
	}
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= base
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	if p.Jitter {
		d *= 0.5 + randFloat()
	}
	return time.Duration(d)
}

// Delays returns the full unjittered sleep schedule for a policy,
// useful for asserting monotonicity in tests
func Delays(p Policy) []time.Duration {
	flat := p
	flat.Jitter = false
	out := make([]time.Duration, 0, p.MaxRetries)
	for i := 0; i < p.MaxRetries; i++ {
		out = append(out, Delay(flat, i))
	}
	return out
}
