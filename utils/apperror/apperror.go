package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that must map it to a transport
// status or decide between retry/deny.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindRateLimit      Kind = "rate_limit"
	KindNotFound       Kind = "not_found"
	KindInternal       Kind = "internal"
)

// Error is a kind-tagged service error. Code is a stable machine-readable
// identifier; Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two app errors by kind and code so sentinel comparisons work
// through errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// ErrInvalidCredentials is the single authentication failure handed to
// callers. It deliberately carries no sub-detail: unknown user, wrong
// password and inactive account all collapse into this one value so
// responses cannot be used for account enumeration.
var ErrInvalidCredentials = &Error{
	Kind:    KindAuthentication,
	Code:    "invalid_credentials",
	Message: "Invalid username or password",
}

// Authorization builds an authorization error (expired/revoked/invalid
// token, malformed scope request).
func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

// Validation builds a validation error with a caller-visible message.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// RateLimit builds a rate-limit error.
func RateLimit(code, message string) *Error {
	return &Error{Kind: KindRateLimit, Code: code, Message: message}
}

// NotFound builds a not-found error for operations on missing entities.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Internal wraps a storage or infrastructure failure. The wrapped error is
// preserved for logs; the message stays generic.
func Internal(code string, err error) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: "Internal error", Err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the machine-readable code of err, or "" if untagged.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
