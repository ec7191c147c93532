package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeForbidden  ErrorType = "forbidden"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
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

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
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

// Domain error variables

var (
	// Not Found Errors
	ErrTenantNotFound     = NewDomainError(ErrorTypeNotFound, "tenant not found", nil)
	ErrCredentialNotFound = NewDomainError(ErrorTypeNotFound, "credential not found", nil)

	// Validation Errors
	ErrInvalidSlug           = NewDomainError(ErrorTypeValidation, "invalid slug format", nil)
	ErrInvalidCredentialName = NewDomainError(ErrorTypeValidation, "invalid credential name", nil)
	ErrNoTenantContext       = NewDomainError(ErrorTypeValidation, "request has no tenant", nil)

	// Conflict Errors
	ErrDuplicateSlug = NewDomainError(ErrorTypeConflict, "slug already exists", nil)
	ErrTenantsShared = NewDomainError(ErrorTypeConflict, "identifier matches more than one tenant", nil)

	// Internal Errors
	ErrInternal         = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDecryptionFailed = NewDomainError(ErrorTypeInternal, "stored secret could not be decrypted", nil)
)

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) *DomainError {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, err)
}
