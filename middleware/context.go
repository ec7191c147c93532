package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/internal/auth"
	"github.com/upb/tenant-gateway/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestContext retrieves the authorized request context stored by AuthMiddleware
func GetRequestContext(ctx context.Context) *auth.RequestContext {
	rc, ok := auth.FromContext(ctx)
	if !ok {
		return nil
	}
	return rc
}

// GetPrincipalFromContext retrieves the authorized principal, or nil
func GetPrincipalFromContext(ctx context.Context) *models.Principal {
	rc := GetRequestContext(ctx)
	if rc == nil {
		return nil
	}
	principal := rc.Principal()
	return &principal
}

// GetTenantIDFromContext retrieves the resolved tenant ID, or uuid.Nil
func GetTenantIDFromContext(ctx context.Context) uuid.UUID {
	rc := GetRequestContext(ctx)
	if rc == nil {
		return uuid.Nil
	}
	return rc.TenantID()
}
