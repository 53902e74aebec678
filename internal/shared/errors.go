package shared

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeVaultDisabled   ErrorType = "vault_disabled"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeUpstream        ErrorType = "upstream"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeInternal        ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Code narrows a Type into a subtype (e.g. token_expired within unauthenticated).
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Type, and on Code as well when the target carries one.
// errors.Is(ErrTokenExpired, ErrUnauthenticated) is therefore true while
// errors.Is(ErrTokenExpired, ErrTokenInvalid) is false.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func newCodedError(errType ErrorType, code, message string) *DomainError {
	e := NewDomainError(errType, message, nil)
	e.Code = code
	return e
}

// Reason codes carried by unauthenticated errors.
const (
	CodeMissingToken     = "missing_token"
	CodeTokenInvalid     = "token_invalid"
	CodeTokenExpired     = "token_expired"
	CodeStoreUnavailable = "identity_store_unavailable"
)

var (
	// Authentication
	ErrUnauthenticated  = NewDomainError(ErrorTypeUnauthenticated, "authentication required", nil)
	ErrMissingToken     = newCodedError(ErrorTypeUnauthenticated, CodeMissingToken, "missing bearer token")
	ErrTokenInvalid     = newCodedError(ErrorTypeUnauthenticated, CodeTokenInvalid, "invalid authentication token")
	ErrTokenExpired     = newCodedError(ErrorTypeUnauthenticated, CodeTokenExpired, "authentication token expired")
	ErrStoreUnavailable = newCodedError(ErrorTypeUnauthenticated, CodeStoreUnavailable, "identity store unavailable")

	// Authorization
	ErrForbidden = NewDomainError(ErrorTypeForbidden, "insufficient role", nil)

	// Validation
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidRole  = NewDomainError(ErrorTypeValidation, "invalid role", nil)

	// Vault
	ErrVaultDisabled  = NewDomainError(ErrorTypeVaultDisabled, "vault is not enabled", nil)
	ErrSecretNotFound = NewDomainError(ErrorTypeNotFound, "secret not found", nil)
	ErrUpstreamVault  = NewDomainError(ErrorTypeUpstream, "vault request failed", nil)

	// Not found
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	// Rate limiting
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	// Internal
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// Unauthenticated returns an unauthenticated error with the given reason code,
// wrapping the underlying cause.
func Unauthenticated(code, message string, err error) error {
	e := NewDomainError(ErrorTypeUnauthenticated, message, err)
	e.Code = code
	return e
}

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsUnauthenticatedError checks if an error is an unauthenticated error
func IsUnauthenticatedError(err error) bool { return hasType(err, ErrorTypeUnauthenticated) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsVaultDisabledError checks if an error reports a disabled vault
func IsVaultDisabledError(err error) bool { return hasType(err, ErrorTypeVaultDisabled) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsUpstreamError checks if an error is a vault/transport failure
func IsUpstreamError(err error) bool { return hasType(err, ErrorTypeUpstream) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool { return hasType(err, ErrorTypeRateLimit) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the reason code of a domain error, if any
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapUpstream wraps a vault or transport failure. The message is safe to
// return to clients; the cause stays server-side.
func WrapUpstream(message string, err error) error {
	return NewDomainError(ErrorTypeUpstream, message, err)
}
