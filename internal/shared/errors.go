package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the change clashes with existing data.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the actor may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable indicates a downstream service could not serve the request.
	ErrUnavailable = errors.New("service unavailable")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns text suitable for a flash message.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrConflict):
		return "That change conflicts with existing records"
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to do that"
	case errors.Is(err, ErrUnavailable):
		return "That feature is temporarily unavailable"
	case errors.Is(err, ErrValidation):
		if _, plain := FieldErrors(err)["general"]; !plain {
			return "Please check the highlighted fields"
		}
		return err.Error()
	default:
		return "Something went wrong, please try again"
	}
}

// Invalid marks err as a validation failure while keeping the validator
// details reachable for FieldErrors.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
