// Package domainerrors carries coded errors across service boundaries.
//
// Services translate store sentinels (see pkg/platform/sentinel) into one of
// these codes; transports map codes to status codes without inspecting
// messages. Messages are caller-safe: never put internal identifiers or
// driver output in them, wrap the cause instead.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping.
type Code string

const (
	// CodeValidation marks a request rejected before any side effect.
	CodeValidation Code = "validation_error"
	// CodeBadRequest marks a malformed request at the transport layer.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks a request without a resolvable caller identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound marks a target that is absent or not owned by the caller.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a uniqueness conflict that could not be resolved.
	CodeConflict Code = "conflict"
	// CodeInvalidState marks a transition the entity's state machine forbids.
	CodeInvalidState Code = "invalid_state"
	// CodeInvariantViolation marks a broken aggregate invariant inside a constructor.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeTimeout marks an aborted transaction or deadline.
	CodeTimeout Code = "timeout"
	// CodeInternal marks a dependency failure; details stay server-side.
	CodeInternal Code = "internal_error"
)

// Error is a coded error with a caller-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and caller-safe message to err.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Message returns the caller-safe message of the outermost domain error.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
