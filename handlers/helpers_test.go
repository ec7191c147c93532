package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-gateway/internal/auth"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/oidc"
	"github.com/upb/tenant-gateway/repositories/mocks"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

type stubVerifier struct {
	claims *oidc.ClaimSet
}

func (v stubVerifier) Verify(ctx context.Context, authorizationHeader string) (*oidc.ClaimSet, error) {
	if v.claims == nil {
		return nil, oidc.ErrInvalidToken
	}
	return v.claims, nil
}

// authorize runs req through a real gate so that handlers see the same request
// context they get in production. An empty principalID authorizes anonymously.
func authorize(t *testing.T, req *http.Request, principalID string, tenant *models.Tenant, role models.TenantRole) *http.Request {
	t.Helper()
	logger := zap.NewNop()

	tenants := new(mocks.TenantRepository)
	memberships := new(mocks.MembershipRepository)

	verifier := stubVerifier{}
	if principalID != "" {
		verifier.claims = &oidc.ClaimSet{Subject: "sub-" + principalID, ObjectID: principalID, Email: principalID + "@example.com"}
		req.Header.Set("Authorization", "Bearer test")
	}
	if tenant != nil {
		req.Header.Set(auth.HeaderTenantID, tenant.ID.String())
		tenants.On("FindByIdentifier", mock.Anything, tenant.ID.String()).Return([]*models.Tenant{tenant}, nil)
		if principalID != "" {
			var membership *models.Membership
			if role != "" {
				membership = models.NewMembership(tenant.ID, principalID, role)
			}
			memberships.On("Get", mock.Anything, tenant.ID, principalID).Return(membership, nil)
		}
	}

	gate, err := auth.NewGate(auth.GateConfig{
		Mode:       auth.ModeStrict,
		Verifier:   verifier,
		Identities: auth.NewIdentityResolver(auth.ModeStrict, new(mocks.UserRepository), auth.DevIdentity{}, logger),
		Tenants:    auth.NewTenantResolver(tenants, memberships, auth.ModeStrict, "", logger),
		Tracer:     tracenoop.NewTracerProvider().Tracer("test"),
		Meter:      metricnoop.NewMeterProvider().Meter("test"),
		Logger:     logger,
	})
	require.NoError(t, err)

	outcome := gate.AuthorizeOptional(req.Context(), req, auth.Requirements{TenantOptional: true})
	require.True(t, outcome.Allowed(), "authorization failed: %v", outcome.Err)

	return req.WithContext(auth.WithRequestContext(req.Context(), outcome.Context))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
