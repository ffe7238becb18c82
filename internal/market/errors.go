package market

import "errors"

// Kind classifies an engine failure for the command surface.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindForbidden          Kind = "FORBIDDEN"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
)

// Error is the engine's error type. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or KindStorageUnavailable for errors the
// engine did not classify.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageUnavailable
}
