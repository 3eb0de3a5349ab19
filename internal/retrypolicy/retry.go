// Package retrypolicy implements bounded exponential backoff with
// jitter, and delegation to a registered fallback once the retry budget
// is exhausted.
//
// Interval sizing is delegated to cenkalti/backoff/v5's ExponentialBackOff;
// the jitter applied on top is a B·E^(attempt-1)·(1±J) formula rather
// than the library's built-in randomization, so the exact backoff
// semantics hold regardless of which implementation sizes the base
// interval.
package retrypolicy

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/answer42/agentcore/internal/corekit"
)

// Config holds the retry parameters, with its named defaults.
type Config struct {
	MaxAttempts     int           // M, default 3
	BaseDelay       time.Duration // B, default 1s
	Multiplier      float64       // E, default 2
	JitterFraction  float64       // J, default 0.2 (±20%)
	PerAttemptDeadline time.Duration // 0 means "caller's ctx governs"
}

// DefaultConfig returns the policy's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		Multiplier:     2,
		JitterFraction: 0.2,
	}
}

// Fallback is invoked exactly once, with no further retries, once the
// primary retry budget is exhausted. It returns
// whether a fallback exists for this call at all; when it returns
// (nil, false) the policy surfaces the last primary error.
type Fallback func(ctx context.Context) (*corekit.StageResult, bool, error)

// Policy wraps an operation with the retry/backoff/fallback behavior.
type Policy struct {
	cfg Config
}

// New builds a Policy. Zero fields in cfg are replaced by DefaultConfig().
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = def.JitterFraction
	}
	return &Policy{cfg: cfg}
}

// newIntervalSizer builds the backoff.v5 exponential backoff used purely
// to size each attempt's base interval (before our own jitter is applied).
func (p *Policy) newIntervalSizer() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BaseDelay
	b.Multiplier = p.cfg.Multiplier
	b.MaxInterval = p.cfg.BaseDelay * time.Duration(1<<uint(p.cfg.MaxAttempts))
	b.RandomizationFactor = 0 // we apply our own jitter formula below
	return b
}

// jitter applies a B·E^(attempt-1)·(1±J) formula to a base
// interval already produced by the sizer for this attempt.
func (p *Policy) jitter(base time.Duration) time.Duration {
	if p.cfg.JitterFraction <= 0 {
		return base
	}
	delta := (rand.Float64()*2 - 1) * p.cfg.JitterFraction // in [-J, J]
	return time.Duration(float64(base) * (1 + delta))
}

// Do runs op, retrying on retryable errors per corekit.Retryable, up to
// MaxAttempts. If every attempt fails and fallback is non-nil, fallback is
// invoked exactly once with no further retries; its StageResult is marked
// UsedFallback with PrimaryFailureReason set to the last primary error's
// kind.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) (*corekit.StageResult, error), fallback Fallback) (*corekit.StageResult, error) {
	sizer := p.newIntervalSizer()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, corekit.NewStageError(corekit.KindCancelled, "retry aborted by context", ctx.Err())
		default:
		}

		attemptCtx, cancelAttempt := ctx, context.CancelFunc(func() {})
		if p.cfg.PerAttemptDeadline > 0 {
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, p.cfg.PerAttemptDeadline)
		}
		result, err := op(attemptCtx)
		cancelAttempt()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !corekit.Retryable(err) {
			// Non-retryable kinds (provider-unavailable, quota-exhausted,
			// invalid-input, deadline-exceeded, cancelled) skip straight to
			// fallback without spending further attempts.
			return p.tryFallback(ctx, lastErr, fallback)
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}

		delay := p.jitter(sizer.NextBackOff())
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, corekit.NewStageError(corekit.KindCancelled, "retry aborted during backoff", ctx.Err())
		case <-timer.C:
		}
	}

	return p.tryFallback(ctx, lastErr, fallback)
}

func (p *Policy) tryFallback(ctx context.Context, primaryErr error, fallback Fallback) (*corekit.StageResult, error) {
	if fallback == nil {
		return nil, primaryErr
	}
	result, ok, err := fallback(ctx)
	if !ok {
		return nil, primaryErr
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		result.UsedFallback = true
		result.PrimaryFailureReason = corekit.KindOf(primaryErr)
	}
	return result, nil
}
