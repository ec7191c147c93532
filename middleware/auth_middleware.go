package middleware

import (
	"context"
	"net/http"

	"github.com/upb/tenant-gateway/internal/auth"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// Authorizer decides whether a request may proceed
type Authorizer interface {
	Authorize(ctx context.Context, r *http.Request, req auth.Requirements) auth.Outcome
	AuthorizeOptional(ctx context.Context, r *http.Request, req auth.Requirements) auth.Outcome
}

// AuthMiddleware translates authorization outcomes into HTTP responses
type AuthMiddleware struct {
	gate   Authorizer
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(gate Authorizer, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		gate:   gate,
		logger: logger,
	}
}

// Require is a middleware that requires an authenticated principal meeting req
func (m *AuthMiddleware) Require(req auth.Requirements) func(http.Handler) http.Handler {
	return m.middleware(req, false)
}

// Optional is a middleware that admits anonymous callers as the empty principal
func (m *AuthMiddleware) Optional(req auth.Requirements) func(http.Handler) http.Handler {
	return m.middleware(req, true)
}

// RequireTenantRoles requires a resolved tenant in which the caller holds one of roles
func (m *AuthMiddleware) RequireTenantRoles(roles ...models.TenantRole) func(http.Handler) http.Handler {
	return m.Require(auth.Requirements{TenantRoles: roles})
}

// RequireGlobalRoles requires one of roles and does not require a tenant
func (m *AuthMiddleware) RequireGlobalRoles(roles ...models.GlobalRole) func(http.Handler) http.Handler {
	return m.Require(auth.Requirements{GlobalRoles: roles, TenantOptional: true})
}

func (m *AuthMiddleware) middleware(req auth.Requirements, optional bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var outcome auth.Outcome
			if optional {
				outcome = m.gate.AuthorizeOptional(ctx, r, req)
			} else {
				outcome = m.gate.Authorize(ctx, r, req)
			}

			if !outcome.Allowed() || outcome.Context == nil {
				m.writeDenial(w, r, outcome)
				return
			}

			ctx = auth.WithRequestContext(ctx, outcome.Context)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *AuthMiddleware) writeDenial(w http.ResponseWriter, r *http.Request, outcome auth.Outcome) {
	requestID := GetRequestIDFromContext(r.Context())

	switch outcome.Kind {
	case auth.OutcomeDeniedUnauthenticated:
		_ = utils.WriteUnauthorized(w, "Missing or invalid authorization", `Bearer error="invalid_token"`)
	case auth.OutcomeDeniedNoTenant:
		_ = utils.WriteBadRequest(w, "Tenant identifier required", map[string]interface{}{
			"accepted": []string{auth.HeaderTenantID, auth.HeaderTenantSlug, "subdomain", auth.QueryTenantID, auth.QueryTenantSlug},
		})
	case auth.OutcomeDeniedTenantNotFound:
		_ = utils.WriteNotFound(w, "Tenant not found")
	case auth.OutcomeDeniedTenantInactive:
		_ = utils.WriteForbidden(w, "Tenant is inactive")
	case auth.OutcomeDeniedInsufficientGlobalRole, auth.OutcomeDeniedInsufficientTenantRole:
		_ = utils.WriteForbidden(w, "Insufficient permissions")
	default:
		m.logger.Error("authorization could not be completed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(outcome.Err))
		_ = utils.WriteError(w, http.StatusInternalServerError, "Authorization could not be completed", map[string]interface{}{
			"request_id": requestID,
		})
	}
}
