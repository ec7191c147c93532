package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/models"
)

// RequestContext is the authorized identity and tenant of a request.
// It is created only by an allowed Outcome and cannot be modified.
type RequestContext struct {
	principal  models.Principal
	tenant     *models.Tenant
	membership *models.Membership
	source     SignalSource
	mode       Mode
}

func newRequestContext(principal models.Principal, tc *TenantContext, mode Mode) *RequestContext {
	rc := &RequestContext{principal: principal, mode: mode}
	if tc != nil {
		if tc.Tenant != nil {
			tenant := *tc.Tenant
			rc.tenant = &tenant
		}
		if tc.Membership != nil {
			membership := *tc.Membership
			rc.membership = &membership
		}
		rc.source = tc.Source
	}
	return rc
}

// Principal returns the caller. It is the zero principal for anonymous requests.
func (rc *RequestContext) Principal() models.Principal {
	return rc.principal
}

// Tenant returns a copy of the resolved tenant, or nil
func (rc *RequestContext) Tenant() *models.Tenant {
	if rc.tenant == nil {
		return nil
	}
	tenant := *rc.tenant
	return &tenant
}

// TenantID returns the resolved tenant id, or uuid.Nil
func (rc *RequestContext) TenantID() uuid.UUID {
	if rc.tenant == nil {
		return uuid.Nil
	}
	return rc.tenant.ID
}

// Membership returns a copy of the caller's membership in the tenant, or nil
func (rc *RequestContext) Membership() *models.Membership {
	if rc.membership == nil {
		return nil
	}
	membership := *rc.membership
	return &membership
}

// TenantRole returns the caller's tenant role, or ""
func (rc *RequestContext) TenantRole() models.TenantRole {
	if rc.membership == nil {
		return ""
	}
	return rc.membership.Role
}

// TenantSource returns the signal that selected the tenant
func (rc *RequestContext) TenantSource() SignalSource {
	return rc.source
}

// DevelopmentMode reports whether the request was authorized in development mode
func (rc *RequestContext) DevelopmentMode() bool {
	return rc.mode.Development()
}

type contextKey struct{}

// WithRequestContext stores rc in ctx
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext retrieves the request context stored by WithRequestContext
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
