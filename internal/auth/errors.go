package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies authentication and authorization failures
type ErrorKind string

const (
	KindUnauthenticated        ErrorKind = "unauthenticated"
	KindInvalidToken           ErrorKind = "invalid_token"
	KindKeyUnavailable         ErrorKind = "key_unavailable"
	KindNoTenant               ErrorKind = "no_tenant"
	KindTenantNotFound         ErrorKind = "tenant_not_found"
	KindTenantInactive         ErrorKind = "tenant_inactive"
	KindInsufficientGlobalRole ErrorKind = "insufficient_global_role"
	KindInsufficientTenantRole ErrorKind = "insufficient_tenant_role"
	KindTenantConflict         ErrorKind = "tenant_conflict"
	KindInternal               ErrorKind = "internal"
)

// AuthError represents a failure in the authorization pipeline
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewAuthError creates a new auth error
func NewAuthError(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

var (
	ErrUnauthenticated        = NewAuthError(KindUnauthenticated, "authentication required", nil)
	ErrInvalidToken           = NewAuthError(KindInvalidToken, "invalid or expired token", nil)
	ErrKeyUnavailable         = NewAuthError(KindKeyUnavailable, "signing key unavailable", nil)
	ErrNoTenant               = NewAuthError(KindNoTenant, "tenant identifier required", nil)
	ErrTenantNotFound         = NewAuthError(KindTenantNotFound, "tenant not found", nil)
	ErrTenantInactive         = NewAuthError(KindTenantInactive, "tenant is inactive", nil)
	ErrInsufficientGlobalRole = NewAuthError(KindInsufficientGlobalRole, "insufficient role", nil)
	ErrInsufficientTenantRole = NewAuthError(KindInsufficientTenantRole, "insufficient tenant role", nil)
	ErrTenantConflict         = NewAuthError(KindTenantConflict, "tenant identifier is ambiguous", nil)
	ErrInternal               = NewAuthError(KindInternal, "authorization failed", nil)

	// ErrDevModeDisabled is returned when the development identity is requested outside development mode
	ErrDevModeDisabled = errors.New("development identity is disabled")
)

// KindOf returns the kind of an AuthError, or KindInternal for any other error
func KindOf(err error) ErrorKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}
