// Package ratelimit implements the per-provider token bucket: Acquire
// blocks until a token is available (first-waiter-first-served),
// TryAcquire never blocks, and the waiter queue has a configurable
// high-water mark past which Acquire fails fast with provider-overloaded.
//
// Grounded on a "single-writer message loop" shared-resource policy: a
// single goroutine owns the bucket and refills it on a ticker,
// serializing every mutation without a mutex per operation.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
)

// Config holds the bucket parameters.
type Config struct {
	// Capacity is C: the bucket size.
	Capacity int
	// RefillPerSec is R: tokens added per second.
	RefillPerSec float64
	// HighWaterMark bounds the waiter queue (default 1000).
	HighWaterMark int
}

// DefaultHighWaterMark is the default of 1000 waiters.
const DefaultHighWaterMark = 1000

// Limiter is one provider's token bucket.
type Limiter struct {
	cfg Config

	requests chan chan bool
	stop     chan struct{}

	waiting int64 // atomic count of queued acquire requests
}

// New starts the limiter's refill loop and returns a ready-to-use Limiter.
// Callers must call Close when done to stop the background goroutine.
func New(cfg Config) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.RefillPerSec <= 0 {
		cfg.RefillPerSec = 1
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = DefaultHighWaterMark
	}

	l := &Limiter{
		cfg:      cfg,
		requests: make(chan chan bool),
		stop:     make(chan struct{}),
	}
	go l.run()
	return l
}

// run owns the bucket state exclusively: tokens and the FIFO waiter list
// are only ever touched from this goroutine, so no mutex is needed.
func (l *Limiter) run() {
	tokens := l.cfg.Capacity
	interval := time.Duration(float64(time.Second) / l.cfg.RefillPerSec)
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var waiters []chan bool

	grant := func() {
		for tokens > 0 && len(waiters) > 0 {
			w := waiters[0]
			waiters = waiters[1:]
			atomic.AddInt64(&l.waiting, -1)
			tokens--
			w <- true
		}
	}

	for {
		select {
		case <-l.stop:
			for _, w := range waiters {
				w <- false
			}
			return
		case <-ticker.C:
			if tokens < l.cfg.Capacity {
				tokens++
			}
			grant()
		case w := <-l.requests:
			waiters = append(waiters, w)
			atomic.AddInt64(&l.waiting, 1)
			grant()
		}
	}
}

// Acquire blocks until a token is available or ctx is done. It honors
// cancellation while suspended waiting for a grant.
func (l *Limiter) Acquire(ctx context.Context) error {
	if atomic.LoadInt64(&l.waiting) >= int64(l.cfg.HighWaterMark) {
		return corekit.NewStageError(corekit.KindProviderOverloaded, "rate limiter queue at high-water mark", corekit.ErrRateLimiterBusy)
	}

	granted := make(chan bool, 1)
	select {
	case l.requests <- granted:
	case <-ctx.Done():
		return corekit.NewStageError(corekit.KindCancelled, "acquire cancelled before enqueue", ctx.Err())
	case <-l.stop:
		return corekit.NewStageError(corekit.KindProviderUnavail, "rate limiter closed", nil)
	}

	select {
	case ok := <-granted:
		if !ok {
			return corekit.NewStageError(corekit.KindProviderUnavail, "rate limiter closed", nil)
		}
		return nil
	case <-ctx.Done():
		return corekit.NewStageError(corekit.KindCancelled, "acquire cancelled while queued", ctx.Err())
	}
}

// TryAcquire attempts to acquire a token without blocking. It returns
// false if none is immediately available.
func (l *Limiter) TryAcquire() bool {
	granted := make(chan bool, 1)
	select {
	case l.requests <- granted:
	case <-l.stop:
		return false
	}
	select {
	case ok := <-granted:
		return ok
	case <-time.After(time.Millisecond):
		// The refill goroutine enqueued us but hasn't granted yet; treat
		// as unavailable rather than blocking a non-blocking call.
		return false
	}
}

// Close stops the refill goroutine. Queued waiters are released with a
// false grant; the orchestrator derives limiter lifetime from process
// lifetime, not per-request, so Close is only ever called at shutdown.
func (l *Limiter) Close() {
	close(l.stop)
}

// Waiting reports the current number of queued acquire calls, for metrics.
func (l *Limiter) Waiting() int {
	return int(atomic.LoadInt64(&l.waiting))
}
