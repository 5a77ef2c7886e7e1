package errors

import (
	"errors"
	"fmt"
)

// Common error types for the auth client
var (
	// Local validation errors (no network call was made)
	ErrValidation = errors.New("validation failed")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// Token errors
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Transport errors
	ErrNetwork = errors.New("network error")
	ErrServer  = errors.New("server error")

	// Storage errors
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrKeyNotFound      = errors.New("key not found")
)

// APIError is a failure reported by the identity service. Message carries
// the server's human-readable detail verbatim; Kind is one of the sentinel
// errors above so callers can match with errors.Is.
type APIError struct {
	Kind       error
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// NewAPIError builds an APIError, substituting the sentinel's text when the
// server provided no usable message.
func NewAPIError(kind error, message string, statusCode int) *APIError {
	if message == "" {
		message = kind.Error()
	}
	return &APIError{Kind: kind, Message: message, StatusCode: statusCode}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
