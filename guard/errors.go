package guard

import (
	"fmt"
	"net/http"
)

// Error codes returned by facade operations
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeRateLimited        = "rate_limited"
	ErrorCodeTooManySessions    = "too_many_sessions"
	ErrorCodeSessionNotFound    = "session_not_found"
	ErrorCodeInvalidSession     = "invalid_session"
	ErrorCodeUnauthenticated    = "unauthenticated"
	ErrorCodeServerError        = "server_error"
)

// Error is a facade error with a machine-readable code and an HTTP-ish
// status, so the (out of scope) transport layer can map it without parsing
// messages.
type Error struct {
	Code        string // e.g., "invalid_credentials", "rate_limited"
	Description string // Human-readable error description
	Status      int    // Suggested HTTP status code
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a new facade error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common errors as reusable constructors
var (
	// ErrInvalidRequest indicates malformed input that never reached the
	// stores. Distinct from authentication failure so clients can tell
	// "you sent garbage" from "you are not authorized".
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidCredentials is the uniform authentication failure. The
	// wording never reveals whether the user exists, the password was
	// wrong, or the account is otherwise unusable.
	ErrInvalidCredentials = func() *Error {
		return NewError(ErrorCodeInvalidCredentials, "invalid username or password", http.StatusUnauthorized)
	}

	// ErrRateLimited indicates the identifier is blocked or over its
	// sliding window
	ErrRateLimited = func() *Error {
		return NewError(ErrorCodeRateLimited, "too many requests", http.StatusTooManyRequests)
	}

	// ErrTooManySessions is the capacity refusal: the user holds the
	// session cap and no held session is evictable. Retryable, and
	// deliberately distinct from an authentication failure.
	ErrTooManySessions = func() *Error {
		return NewError(ErrorCodeTooManySessions, "too many active sessions", http.StatusTooManyRequests)
	}

	// ErrSessionNotFound indicates a logout targeting a session that is
	// already gone
	ErrSessionNotFound = func() *Error {
		return NewError(ErrorCodeSessionNotFound, "session not found", http.StatusNotFound)
	}

	// ErrInvalidSession indicates a refresh of an absent or dead session
	ErrInvalidSession = func() *Error {
		return NewError(ErrorCodeInvalidSession, "invalid session", http.StatusBadRequest)
	}

	// ErrUnauthenticated indicates the caller's own session could not be
	// resolved
	ErrUnauthenticated = func() *Error {
		return NewError(ErrorCodeUnauthenticated, "not authenticated", http.StatusUnauthorized)
	}

	// ErrServerError indicates an internal failure unrelated to the
	// caller's input
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)
