// Package ddns defines the data model and subsystem contracts shared by the
// ddnsd orchestration engine and its pluggable IP source, DNS provider, and
// state store implementations.
package ddns

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an Error into one of the dispositions the engine consults
// when deciding whether to retry, fail a record, or abort startup.
type Kind int

const (
	// KindConfig indicates invalid user input detected by a factory. Fatal at startup.
	KindConfig Kind = iota
	// KindTransient indicates a network timeout, 5xx, 429, or DNS resolution failure. Retryable.
	KindTransient
	// KindAuthentication indicates a 401/403 or provider auth error code. Fatal per-record, never retried.
	KindAuthentication
	// KindNotFound indicates a zone or record was not discoverable. Fatal per-record.
	KindNotFound
	// KindRateLimited indicates the provider signalled rate limiting. Retryable with a supplied delay.
	KindRateLimited
	// KindConflict indicates a concurrent modification (e.g. HTTP 409). Retried once, then fatal.
	KindConflict
	// KindState indicates a state store read/write failure. The engine continues in memory.
	KindState
	// KindInternal indicates an unexpected error. Fatal at startup, logged during runtime.
	KindInternal
)

// String returns the lowercase name of the kind, used in log fields and event payloads.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the single error type used across all three subsystem contracts.
// No Error, and no value it wraps, may ever render an API token or other
// secret in its message.
type Error struct {
	Kind Kind
	// Message is a short, human-readable, secret-free description.
	Message string
	// RetryAfter is an optional provider-supplied delay, used for KindRateLimited.
	RetryAfter time.Duration
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithRetryAfter returns a copy of e with RetryAfter set, for KindRateLimited
// errors that carry a provider-supplied delay (e.g. a Retry-After header).
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	cp := *e
	cp.RetryAfter = d
	return &cp
}

// Classify returns the Kind of err. It is total: any error that is not, and
// does not wrap, a *Error is classified KindInternal. This is the pure
// classification method the engine consults for retry/fatal decisions,
// usable even against errors returned by third-party client libraries.
func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterOf returns the RetryAfter duration carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// IsRetryable reports whether the engine's retry loop should attempt err
// again: KindTransient and KindRateLimited are retryable; everything else
// (including KindConflict, which is retried exactly once by the engine's own
// attempt counter rather than by this predicate) is not.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// Sentinel errors for conditions that do not carry subsystem-specific context.
var (
	// ErrNotFound indicates a record does not exist at the provider.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedRecord indicates a provider declined a record outside its authority.
	ErrUnsupportedRecord = errors.New("record outside provider authority")
)
