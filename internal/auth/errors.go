package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/rfpdesk/rfpdesk/internal/shared"
)

// Code is the closed set of authentication failure kinds.
type Code string

const (
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeEmailNotVerified        Code = "EMAIL_NOT_VERIFIED"
	CodeEmailAlreadyExists      Code = "EMAIL_ALREADY_EXISTS"
	CodeWeakPassword            Code = "WEAK_PASSWORD"
	CodeSessionExpired          Code = "SESSION_EXPIRED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeNetworkError            Code = "NETWORK_ERROR"
	CodeUnknownError            Code = "UNKNOWN_ERROR"
)

// Error is an authentication failure carrying one of the Codes. Two Errors
// match under errors.Is when their codes are equal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidCredentials      = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrEmailNotVerified        = &Error{Code: CodeEmailNotVerified, Message: "email address has not been confirmed"}
	ErrEmailAlreadyExists      = &Error{Code: CodeEmailAlreadyExists, Message: "email address is already registered"}
	ErrWeakPassword            = &Error{Code: CodeWeakPassword, Message: "password must have 8+ characters with upper and lower case letters, a number and a symbol"}
	ErrSessionExpired          = &Error{Code: CodeSessionExpired, Message: "session has expired, please sign in again"}
	ErrInsufficientPermissions = &Error{Code: CodeInsufficientPermissions, Message: "insufficient permissions"}
	ErrNetwork                 = &Error{Code: CodeNetworkError, Message: "could not reach the authentication service"}
	ErrUnknown                 = &Error{Code: CodeUnknownError, Message: "unexpected authentication error"}
)

// Wrap returns a copy of base carrying cause.
func Wrap(base *Error, cause error) *Error {
	return &Error{Code: base.Code, Message: base.Message, Err: cause}
}

// MapError folds any error into the taxonomy. Timeouts and transport
// failures become NetworkError; anything unrecognised becomes UnknownError.
// Validation errors pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return Wrap(ErrNetwork, err)
	}
	return Wrap(ErrUnknown, err)
}

// CodeOf returns the taxonomy code of err, or UnknownError.
func CodeOf(err error) Code {
	var authErr *Error
	if errors.As(MapError(err), &authErr) {
		return authErr.Code
	}
	return CodeUnknownError
}

// HTTPStatus maps a code to the status used by the JSON API.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidCredentials, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeEmailNotVerified, CodeInsufficientPermissions:
		return http.StatusForbidden
	case CodeEmailAlreadyExists:
		return http.StatusConflict
	case CodeWeakPassword:
		return http.StatusUnprocessableEntity
	case CodeNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromCode rebuilds a taxonomy error received over the wire.
func ErrorFromCode(code Code, message string) *Error {
	for _, base := range []*Error{ErrInvalidCredentials, ErrEmailNotVerified, ErrEmailAlreadyExists, ErrWeakPassword, ErrSessionExpired, ErrInsufficientPermissions, ErrNetwork} {
		if base.Code == code {
			if message == "" {
				message = base.Message
			}
			return &Error{Code: code, Message: message}
		}
	}
	if message == "" {
		message = ErrUnknown.Message
	}
	return &Error{Code: CodeUnknownError, Message: message}
}

// ValidationError reports rejected form input before any provider call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// NewValidationError converts validator output into a ValidationError.
func NewValidationError(err error) *ValidationError {
	return &ValidationError{Fields: shared.FieldErrors(err)}
}
