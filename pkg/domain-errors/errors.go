package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error so transport and callers can react without
// string-matching messages.
type Code string

const (
	// CodeBadRequest covers malformed input: missing fields, bad JSON, unparsable IDs.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput covers well-formed input that fails domain validation,
	// e.g. an entity role outside the recognized set.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound covers lookups for records, sessions, or persons that do not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict covers duplicate-subject records and already-open sessions.
	// The caller may retry with different parameters.
	CodeConflict Code = "conflict"
	// CodeInvalidTransition covers lifecycle operations attempted from a state
	// that does not permit them, e.g. rejecting a finalized record.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeUnauthorized covers failed entity authentication.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden covers authenticated entities acting outside their role.
	CodeForbidden Code = "forbidden"
	// CodeTimeout covers deadline expiry on external collaborator calls.
	CodeTimeout Code = "timeout"
	// CodeRateLimited covers requests refused by the credential endpoint throttle.
	CodeRateLimited Code = "rate_limited"
	// CodeUnavailable covers transient downstream failures that were retried
	// internally and may succeed later.
	CodeUnavailable Code = "unavailable"
	// CodeEscalated marks exhausted retries or repeated verification failure:
	// manual operator action is required before the subject can proceed.
	CodeEscalated Code = "escalated"
	// CodeInvariant marks a programming-level invariant violation. Processing
	// for the affected subject halts; never mapped to a retryable status.
	CodeInvariant Code = "invariant_violation"
	// CodeInternal is the catch-all for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is the domain error type carried across service boundaries.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/errors.As.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.err
		if err == nil {
			return false
		}
	}
	return false
}

// HasCode reports whether err carries the given code. Alias of Is.
func HasCode(err error, code Code) bool { return Is(err, code) }

// CodeOf extracts the outermost domain error code, or CodeInternal when err is
// not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a domain error code to the HTTP status the transport layer
// should return.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeEscalated:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}
