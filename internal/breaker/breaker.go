// Package breaker implements a per-agent-type circuit breaker: a sliding
// window of the last N outcomes trips the circuit open once the failure
// ratio reaches a threshold, a cool-down lets the breaker probe recovery
// in a half-open state, and failed probes double the cool-down up to a
// ceiling.
//
// Trimmed to a simple 3-state model and driven by
// corekit.CountsAsBreakerFailure instead of a bespoke error classifier.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
)

// State is the circuit breaker's current state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker's tunables, with its named defaults.
type Config struct {
	Name string
	// WindowSize is N: the number of most recent outcomes tracked.
	WindowSize int
	// FailureThreshold is T: the failure ratio (0..1) that trips the
	// breaker once at least WindowSize outcomes have been recorded.
	FailureThreshold float64
	// CoolDown is D: how long Open waits before trying Half-Open.
	CoolDown time.Duration
	// CoolDownCeiling bounds the doubling applied after a failed probe.
	CoolDownCeiling time.Duration
	// HalfOpenProbes is K: concurrent probe calls allowed in Half-Open.
	HalfOpenProbes int
	Logger         corekit.Logger
	Metrics        MetricsCollector
}

// DefaultConfig returns the breaker's named defaults: N=20, T=0.5, D=30s
// (ceiling 5m), K=3.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		WindowSize:       20,
		FailureThreshold: 0.5,
		CoolDown:         30 * time.Second,
		CoolDownCeiling:  5 * time.Minute,
		HalfOpenProbes:   3,
		Logger:           corekit.NoOpLogger{},
		Metrics:          noopMetrics{},
	}
}

// MetricsCollector receives state-change and outcome notifications. A
// typical implementation records OpenTelemetry counters/gauges.
type MetricsCollector interface {
	RecordOutcome(name string, success bool)
	RecordStateChange(name string, from, to State)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(string, bool)             {}
func (noopMetrics) RecordStateChange(string, State, State) {}
func (noopMetrics) RecordRejection(string)                 {}

// Breaker is one per-agent-type circuit breaker instance. The core owns
// one Breaker per provider, constructed once and shared by every request.
type Breaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	outcomes      []bool // ring buffer of the last WindowSize outcomes; true = success
	cursor        int
	filled        int
	openedAt      time.Time
	currentCoolDn time.Duration
	halfOpenInFl  int
	halfOpenOK    int
	halfOpenBad   int
}

// New constructs a Breaker. A zero Config.WindowSize etc. is filled in
// from DefaultConfig(cfg.Name).
func New(cfg Config) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = def.CoolDown
	}
	if cfg.CoolDownCeiling <= 0 {
		cfg.CoolDownCeiling = def.CoolDownCeiling
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = def.Metrics
	}
	return &Breaker{
		cfg:           cfg,
		state:         Closed,
		outcomes:      make([]bool, cfg.WindowSize),
		currentCoolDn: cfg.CoolDown,
	}
}

// State returns the breaker's current state, transitioning Open->HalfOpen
// if the cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeTransitionToHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.currentCoolDn {
		b.transitionLocked(HalfOpen)
		b.halfOpenInFl, b.halfOpenOK, b.halfOpenBad = 0, 0, 0
	}
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.cfg.Metrics.RecordStateChange(b.cfg.Name, from, to)
	b.cfg.Logger.Info("circuit breaker state change", map[string]interface{}{
		"breaker": b.cfg.Name, "from": from.String(), "to": to.String(),
	})
	if to == Open {
		b.openedAt = time.Now()
	}
	if to == Closed {
		b.currentCoolDn = b.cfg.CoolDown
		b.cursor, b.filled = 0, 0
	}
}

// Allow reports whether a call may proceed, and if so reserves a
// half-open probe slot when applicable. Callers that get false must raise
// KindProviderUnavailable and go straight to fallback without calling
// the provider.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()

	switch b.state {
	case Closed:
		return true
	case Open:
		b.cfg.Metrics.RecordRejection(b.cfg.Name)
		return false
	case HalfOpen:
		if b.halfOpenInFl >= b.cfg.HalfOpenProbes {
			b.cfg.Metrics.RecordRejection(b.cfg.Name)
			return false
		}
		b.halfOpenInFl++
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Metrics.RecordOutcome(b.cfg.Name, true)

	if b.state == HalfOpen {
		b.halfOpenInFl--
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenProbes {
			b.transitionLocked(Closed)
		}
		return
	}
	b.recordOutcomeLocked(true)
}

// RecordFailure records a failed call outcome. Callers must only invoke
// this for errors that corekit.CountsAsBreakerFailure reports true for.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Metrics.RecordOutcome(b.cfg.Name, false)

	if b.state == HalfOpen {
		b.halfOpenInFl--
		b.halfOpenBad++
		b.currentCoolDn *= 2
		if b.currentCoolDn > b.cfg.CoolDownCeiling {
			b.currentCoolDn = b.cfg.CoolDownCeiling
		}
		b.transitionLocked(Open)
		return
	}
	b.recordOutcomeLocked(false)

	if b.filled >= b.cfg.WindowSize && b.failureRatioLocked() >= b.cfg.FailureThreshold {
		b.transitionLocked(Open)
	}
}

func (b *Breaker) recordOutcomeLocked(success bool) {
	b.outcomes[b.cursor] = success
	b.cursor = (b.cursor + 1) % len(b.outcomes)
	if b.filled < len(b.outcomes) {
		b.filled++
	}
}

func (b *Breaker) failureRatioLocked() float64 {
	if b.filled == 0 {
		return 0
	}
	fail := 0
	for i := 0; i < b.filled; i++ {
		if !b.outcomes[i] {
			fail++
		}
	}
	return float64(fail) / float64(b.filled)
}

// Execute runs fn under breaker protection: if the breaker denies the
// call, it returns a KindProviderUnavailable StageError without invoking
// fn. Outcomes are classified via corekit.CountsAsBreakerFailure: an
// invalid-response error still runs fn to completion but does not count
// against the window, matching the "failure excludes
// validation errors" carve-out.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return corekit.NewStageError(corekit.KindProviderUnavail, "circuit open for "+b.cfg.Name, corekit.ErrCircuitOpen)
	}

	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case corekit.CountsAsBreakerFailure(err):
		b.RecordFailure()
	default:
		// Provider responded (e.g. invalid-response); the window is left
		// untouched but in half-open we must still release the probe slot.
		b.mu.Lock()
		if b.state == HalfOpen {
			b.halfOpenInFl--
			b.halfOpenOK++
			if b.halfOpenOK >= b.cfg.HalfOpenProbes {
				b.transitionLocked(Closed)
			}
		}
		b.mu.Unlock()
	}
	return err
}

// Reset forces the breaker back to Closed and clears the failure window.
// Intended for operator use (incident response), not for normal flow.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(Closed)
}
