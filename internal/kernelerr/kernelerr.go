// Package kernelerr defines the closed set of error kinds the kernel
// surfaces. Components wrap failures in a *Error so the retry wrapper and
// the engine's failure accounting can classify them without string
// sniffing.
package kernelerr

import "fmt"

// Kind identifies the category of a kernel failure. The retry wrapper
// (internal/retry) by default treats validation-error, authentication,
// permission-denied and not-found as non-retryable; other kinds are
// retried unless the error message matches a non-retryable pattern.
type Kind string

const (
	// Validation marks a malformed workflow definition or structural
	// integrity failure. Fails construction synchronously; never retried.
	Validation Kind = "validation-error"
	// NotFound marks a missing context slot, task, or graph node.
	NotFound Kind = "not-found"
	// Config marks a missing or invalid credential/configuration value.
	Config Kind = "config-error"
	// Integration marks a failure at an actor call boundary.
	Integration Kind = "integration-error"
	// RejectedByHuman marks a human actor rejection.
	RejectedByHuman Kind = "rejected-by-human"
	// NoMatchingRule marks a decision table evaluation with no matching
	// rule and no default edge.
	NoMatchingRule Kind = "no-matching-rule"
	// NotImplemented marks an unimplemented real-actor mode (e.g. a robot
	// actor configured outside simulation mode).
	NotImplemented Kind = "not-implemented"
	// Cancelled marks a cancelled in-flight operation.
	Cancelled Kind = "cancelled"
	// Authentication marks a failed credential check at the control-plane
	// boundary. Never retried.
	Authentication Kind = "authentication"
	// PermissionDenied marks an authorization failure at the control-plane
	// boundary. Never retried.
	PermissionDenied Kind = "permission-denied"
)

// Error is the kernel's structured error type. Message is the
// human-readable description; Kind drives retry classification and DLQ
// bookkeeping; Stack is an optional captured stack trace for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Stack   string
	// Cause is the underlying error, if any, preserved for errors.Unwrap.
	Cause error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a kernel error kind, preserving
// it as the cause for errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and
// returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var ke *Error
	if err == nil {
		return "", false
	}
	if asError(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}

// asError is a tiny local errors.As to avoid importing errors solely for
// this helper in call sites that already shadow the name.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
