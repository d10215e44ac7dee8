package adapter

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies adapter-stage failures so the pipeline can decide
// between skip, retry, and hard failure without knowing source internals.
type FailureKind string

const (
	// FailureNotFound means the target is legitimately absent on the source.
	FailureNotFound FailureKind = "not_found"
	// FailureTransient means a network/timeout error worth retrying.
	FailureTransient FailureKind = "transient"
	// FailureConfigMissing means the adapter cannot run in this environment
	// (for example the browser automation runtime is unavailable).
	FailureConfigMissing FailureKind = "config_missing"
	// FailureFatal means an unexpected structural failure.
	FailureFatal FailureKind = "fatal"
)

// Error is a classified adapter failure.
type Error struct {
	Kind  FailureKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound reports a legitimately absent target.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: FailureNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps a retryable network or timeout failure.
func Transient(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: FailureTransient, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// ConfigMissing reports that the current environment cannot run the adapter.
func ConfigMissing(format string, args ...interface{}) *Error {
	return &Error{Kind: FailureConfigMissing, Msg: fmt.Sprintf(format, args...)}
}

// Fatal wraps an unexpected structural failure.
func Fatal(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: FailureFatal, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Classify returns the failure kind for an error. Unclassified errors are
// fatal; context deadline/cancellation maps to transient so that fetch
// timeouts are retried.
func Classify(err error) FailureKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}
	return FailureFatal
}

// IsKind reports whether err classifies as the given failure kind.
func IsKind(err error, kind FailureKind) bool {
	return err != nil && Classify(err) == kind
}
