package watch

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies one of the closed set of error conditions this engine can
// report synchronously from the caller's thread or asynchronously via
// ChangeSink.ReportError.
type Kind uint8

const (
	// KindInitializationError indicates that a run loop could not start,
	// due to OS resource exhaustion or a permission failure.
	KindInitializationError Kind = iota
	// KindInvalidTarget indicates that a path is not absolute, or is not a
	// directory where one was required.
	KindInvalidTarget
	// KindAlreadyWatching indicates a duplicate startWatching call for a
	// path already registered on the same Watcher.
	KindAlreadyWatching
	// KindWatchFailed indicates that the operating system refused to
	// install a watch.
	KindWatchFailed
	// KindCallbackFailure indicates that ChangeSink.PathChanged panicked.
	KindCallbackFailure
	// KindAlreadyClosed indicates that Close was called more than once.
	KindAlreadyClosed
	// KindInternalError indicates an unexpected operating system return
	// value.
	KindInternalError
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindInitializationError:
		return "initialization_error"
	case KindInvalidTarget:
		return "invalid_target"
	case KindAlreadyWatching:
		return "already_watching"
	case KindWatchFailed:
		return "watch_failed"
	case KindCallbackFailure:
		return "callback_failure"
	case KindAlreadyClosed:
		return "already_closed"
	case KindInternalError:
		return "internal_error"
	default:
		return "unknown_error"
	}
}

// Error is the concrete error type returned or reported by this package. It
// carries a Kind plus whatever payload is relevant to that Kind (a path, an
// OS error code, or an underlying cause).
type Error struct {
	// Kind identifies the error condition.
	Kind Kind
	// Path is the path associated with the error, if any.
	Path string
	// OSCode is the raw operating system error code associated with the
	// error, if any.
	OSCode int
	// Message is a human-readable description.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}
	if e.OSCode != 0 {
		msg = fmt.Sprintf("%s (os code: %d)", msg, e.OSCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, &Error{Kind: KindX}) style comparisons based only
// on Kind, since Kind is a closed enum and callers care about the category
// of failure, not the specific message or cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// newError constructs an *Error, annotating cause (if non-nil) with message
// via github.com/pkg/errors' WithMessage, so that the unwrapped cause still
// carries the context it was reported under.
func newError(kind Kind, message, path string, osCode int, cause error) *Error {
	if cause != nil {
		cause = pkgerrors.WithMessage(cause, message)
	}
	return &Error{
		Kind:    kind,
		Path:    path,
		OSCode:  osCode,
		Message: message,
		Cause:   cause,
	}
}

// ErrInitializationError is a sentinel matching any KindInitializationError.
var ErrInitializationError = &Error{Kind: KindInitializationError}

// ErrInvalidTarget is a sentinel matching any KindInvalidTarget.
var ErrInvalidTarget = &Error{Kind: KindInvalidTarget}

// ErrAlreadyWatching is a sentinel matching any KindAlreadyWatching.
var ErrAlreadyWatching = &Error{Kind: KindAlreadyWatching}

// ErrWatchFailed is a sentinel matching any KindWatchFailed.
var ErrWatchFailed = &Error{Kind: KindWatchFailed}

// ErrCallbackFailure is a sentinel matching any KindCallbackFailure.
var ErrCallbackFailure = &Error{Kind: KindCallbackFailure}

// ErrAlreadyClosed is a sentinel matching any KindAlreadyClosed.
var ErrAlreadyClosed = &Error{Kind: KindAlreadyClosed}

// ErrInternalError is a sentinel matching any KindInternalError.
var ErrInternalError = &Error{Kind: KindInternalError}
