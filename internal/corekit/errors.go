package corekit

import (
	"errors"
	"fmt"
)

// ErrorKind is a closed taxonomy of failure categories, deliberately a
// closed set of string constants rather than an open-ended error chain so
// every layer (retry policy, circuit breaker, orchestrator) can branch on
// it without caring which provider or agent produced the failure.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid-input"
	KindProviderTransient  ErrorKind = "provider-transient"
	KindProviderRateLimit  ErrorKind = "provider-rate-limited"
	KindProviderQuota      ErrorKind = "provider-quota-exhausted"
	KindProviderUnavail    ErrorKind = "provider-unavailable"
	KindInvalidResponse    ErrorKind = "invalid-response"
	KindDeadlineExceeded   ErrorKind = "deadline-exceeded"
	KindCancelled          ErrorKind = "cancelled"
	KindUpstreamFailed     ErrorKind = "upstream-failed"
	KindDuplicateID        ErrorKind = "duplicate-id"
	KindIllegalTransition  ErrorKind = "illegal-transition"
	KindProviderOverloaded ErrorKind = "provider-overloaded"
)

// Sentinel errors for use with errors.Is where no extra context is needed.
var (
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrRateLimiterBusy  = errors.New("provider-overloaded: rate limiter queue at high-water mark")
	ErrTaskNotFound     = errors.New("task not found")
	ErrMemoNotFound     = errors.New("memory entry not found")
	ErrNoFallback       = errors.New("no fallback registered for agent type")
	ErrFallbackRecursed = errors.New("fallback agent must not recurse into fallback")
)

// StageError wraps an ErrorKind with a human-readable message and an
// optional underlying cause, and is what agents and provider adapters
// return. It implements Unwrap so errors.Is/As compose normally.
type StageError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StageError) Unwrap() error { return e.Cause }

// NewStageError builds a StageError.
func NewStageError(kind ErrorKind, message string, cause error) *StageError {
	return &StageError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to KindProviderTransient
// when err doesn't carry one — an unclassified infrastructure error is
// treated conservatively as retriable rather than silently swallowed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindProviderTransient
}

// Retryable reports whether the retry policy should spend another
// attempt on this error.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProviderTransient, KindProviderRateLimit, KindInvalidResponse:
		return true
	default:
		return false
	}
}

// CountsAsBreakerFailure reports whether err should count toward the
// circuit breaker's sliding failure window. invalid-response counts as
// success for breaker purposes because the provider responded.
func CountsAsBreakerFailure(err error) bool {
	switch KindOf(err) {
	case KindProviderTransient, KindProviderUnavail, KindProviderOverloaded:
		return true
	default:
		return false
	}
}
