package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/oidc"
	"github.com/upb/tenant-gateway/repositories"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newRequest(host, path string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "http://"+host+path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestGate_AuthenticatesBeforeRoleCheck(t *testing.T) {
	f := newGateFixture(t, ModeStrict, nil)

	req := newRequest("acme.app.example", "/api/v1/admin/tenants", map[string]string{HeaderTenantSlug: "ghost"})
	outcome := f.gate.Authorize(context.Background(), req, Requirements{GlobalRoles: []models.GlobalRole{models.RoleAdmin}})

	assert.Equal(t, OutcomeDeniedUnauthenticated, outcome.Kind)
	assert.Equal(t, http.StatusUnauthorized, outcome.HTTPStatus())
	assert.Nil(t, outcome.Context)
	f.tenants.AssertNotCalled(t, "FindByIdentifier", mock.Anything, mock.Anything)
	f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestGate_EndToEnd_SubdomainOwner(t *testing.T) {
	f := newGateFixture(t, ModeStrict, nil)
	ctx := context.Background()
	acme := activeTenant("acme")

	f.verifier.On("Verify", mock.Anything, "Bearer u1-token").Return(claimsFor("u1"), nil)
	f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme}, nil)
	f.memberships.On("Get", mock.Anything, acme.ID, "u1").Return(membershipOf(acme, "u1", models.TenantRoleOwner), nil)

	req := newRequest("acme.app.example", "/api/v1/credentials", map[string]string{"Authorization": "Bearer u1-token"})
	outcome := f.gate.Authorize(ctx, req, Requirements{})

	require.True(t, outcome.Allowed())
	assert.Equal(t, http.StatusOK, outcome.HTTPStatus())
	rc := outcome.Context
	assert.Equal(t, "u1", rc.Principal().ID)
	assert.Equal(t, acme.ID, rc.TenantID())
	assert.Equal(t, "acme", rc.Tenant().Slug)
	assert.Equal(t, models.TenantRoleOwner, rc.TenantRole())
	assert.Equal(t, SourceSubdomain, rc.TenantSource())
	f.assertExpectations(t)
}

func TestGate_EndToEnd_UnknownSlug(t *testing.T) {
	f := newGateFixture(t, ModeStrict, nil)

	f.verifier.On("Verify", mock.Anything, "Bearer u1-token").Return(claimsFor("u1"), nil)
	f.tenants.On("FindByIdentifier", mock.Anything, "ghost").Return([]*models.Tenant{}, nil)

	req := newRequest("app.example", "/api/v1/credentials", map[string]string{
		"Authorization":  "Bearer u1-token",
		HeaderTenantSlug: "ghost",
	})
	outcome := f.gate.Authorize(context.Background(), req, Requirements{TenantRoles: []models.TenantRole{models.TenantRoleOwner}})

	assert.Equal(t, OutcomeDeniedTenantNotFound, outcome.Kind)
	assert.Equal(t, http.StatusNotFound, outcome.HTTPStatus())
	f.memberships.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestGate_Decisions(t *testing.T) {
	acme := activeTenant("acme")
	dormant := inactiveTenant("dormant")

	tests := []struct {
		name       string
		claims     *oidc.ClaimSet
		verifyErr  error
		headers    map[string]string
		setup      func(f *gateFixture)
		req        Requirements
		optional   bool
		wantKind   OutcomeKind
		wantStatus int
	}{
		{
			name:       "invalid token",
			verifyErr:  fmt.Errorf("%w: signature is invalid", oidc.ErrInvalidToken),
			headers:    map[string]string{HeaderTenantSlug: "acme"},
			wantKind:   OutcomeDeniedUnauthenticated,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed token",
			verifyErr:  oidc.ErrMalformedToken,
			headers:    map[string]string{HeaderTenantSlug: "acme"},
			wantKind:   OutcomeDeniedUnauthenticated,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "key unavailable is an error, not a denial",
			verifyErr:  fmt.Errorf("%w: status code 503", oidc.ErrKeyUnavailable),
			headers:    map[string]string{HeaderTenantSlug: "acme"},
			wantKind:   OutcomeError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "missing tenant signal",
			claims:     claimsFor("u1"),
			wantKind:   OutcomeDeniedNoTenant,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "inactive tenant",
			claims:  claimsFor("u1", "Admin"),
			headers: map[string]string{HeaderTenantSlug: "dormant"},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, "dormant").Return([]*models.Tenant{dormant}, nil)
			},
			req:        Requirements{GlobalRoles: []models.GlobalRole{models.RoleAdmin}},
			wantKind:   OutcomeDeniedTenantInactive,
			wantStatus: http.StatusForbidden,
		},
		{
			name:    "tenant store failure is an error",
			claims:  claimsFor("u1"),
			headers: map[string]string{HeaderTenantSlug: "acme"},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return(nil, errors.New("db down"))
			},
			wantKind:   OutcomeError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:    "tenant collision is an error",
			claims:  claimsFor("u1"),
			headers: map[string]string{HeaderTenantSlug: "acme"},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme, dormant}, nil)
			},
			wantKind:   OutcomeError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:    "insufficient global role",
			claims:  claimsFor("u1", "Viewer"),
			headers: map[string]string{HeaderTenantSlug: "acme"},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme}, nil)
				f.memberships.On("Get", mock.Anything, acme.ID, "u1").Return(membershipOf(acme, "u1", models.TenantRoleOwner), nil)
			},
			req:        Requirements{GlobalRoles: []models.GlobalRole{models.RoleAdmin, models.RoleUser}},
			wantKind:   OutcomeDeniedInsufficientGlobalRole,
			wantStatus: http.StatusForbidden,
		},
		{
			name:    "global role checked before tenant role",
			claims:  claimsFor("u1", "Viewer"),
			headers: map[string]string{HeaderTenantSlug: "acme"},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme}, nil)
				f.memberships.On("Get", mock.Anything, acme.ID, "u1").Return(nil, repositories.ErrNotFound)
			},
			req: Requirements{
				GlobalRoles: []models.GlobalRole{models.RoleAdmin},
				TenantRoles: []models.TenantRole{models.TenantRoleOwner},
			},
			wantKind:   OutcomeDeniedInsufficientGlobalRole,
			wantStatus: http.StatusForbidden,
		},
		{
			name:    "non-member denied tenant role",
			claims:  claimsFor("u2", "Admin"),
			headers: map[string]string{HeaderTenantSlug: "acme"},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme}, nil)
				f.memberships.On("Get", mock.Anything, acme.ID, "u2").Return(nil, repositories.ErrNotFound)
			},
			req:        Requirements{TenantRoles: []models.TenantRole{models.TenantRoleMember}},
			wantKind:   OutcomeDeniedInsufficientTenantRole,
			wantStatus: http.StatusForbidden,
		},
		{
			name:    "member lacks admin tenant role",
			claims:  claimsFor("u3"),
			headers: map[string]string{HeaderTenantSlug: "acme"},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme}, nil)
				f.memberships.On("Get", mock.Anything, acme.ID, "u3").Return(membershipOf(acme, "u3", models.TenantRoleMember), nil)
			},
			req:        Requirements{TenantRoles: []models.TenantRole{models.TenantRoleOwner, models.TenantRoleAdmin}},
			wantKind:   OutcomeDeniedInsufficientTenantRole,
			wantStatus: http.StatusForbidden,
		},
		{
			name:    "non-member allowed without tenant role requirement",
			claims:  claimsFor("u4"),
			headers: map[string]string{HeaderTenantID: acme.ID.String()},
			setup: func(f *gateFixture) {
				f.tenants.On("FindByIdentifier", mock.Anything, acme.ID.String()).Return([]*models.Tenant{acme}, nil)
				f.memberships.On("Get", mock.Anything, acme.ID, "u4").Return(nil, repositories.ErrNotFound)
			},
			wantKind:   OutcomeAllowed,
			wantStatus: http.StatusOK,
		},
		{
			name:       "tenant optional route without signal",
			claims:     claimsFor("admin", "Admin"),
			req:        Requirements{GlobalRoles: []models.GlobalRole{models.RoleAdmin}, TenantOptional: true},
			wantKind:   OutcomeAllowed,
			wantStatus: http.StatusOK,
		},
		{
			name:       "optional auth with a bad token is still denied",
			verifyErr:  oidc.ErrInvalidToken,
			optional:   true,
			req:        Requirements{TenantOptional: true},
			wantKind:   OutcomeDeniedUnauthenticated,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t, ModeStrict, nil)

			headers := map[string]string{"Authorization": "Bearer token"}
			for k, v := range tt.headers {
				headers[k] = v
			}
			if tt.claims != nil {
				f.verifier.On("Verify", mock.Anything, "Bearer token").Return(tt.claims, nil)
			} else {
				f.verifier.On("Verify", mock.Anything, "Bearer token").Return(nil, tt.verifyErr)
			}
			if tt.setup != nil {
				tt.setup(f)
			}

			req := newRequest("app.example", "/api/v1/credentials", headers)
			var outcome Outcome
			if tt.optional {
				outcome = f.gate.AuthorizeOptional(context.Background(), req, tt.req)
			} else {
				outcome = f.gate.Authorize(context.Background(), req, tt.req)
			}

			assert.Equal(t, tt.wantKind, outcome.Kind)
			assert.Equal(t, tt.wantStatus, outcome.HTTPStatus())
			assert.Equal(t, tt.wantKind == OutcomeAllowed, outcome.Context != nil)
			if tt.wantKind != OutcomeAllowed {
				assert.Error(t, outcome.Err)
			}
			f.assertExpectations(t)
		})
	}
}

func TestGate_DenialDoesNotLeakAcrossSteps(t *testing.T) {
	f := newGateFixture(t, ModeStrict, nil)

	f.verifier.On("Verify", mock.Anything, "Bearer token").Return(claimsFor("u1", "Viewer"), nil)
	f.tenants.On("FindByIdentifier", mock.Anything, "ghost").Return([]*models.Tenant{}, nil)

	req := newRequest("app.example", "/api/v1/credentials", map[string]string{
		"Authorization":  "Bearer token",
		HeaderTenantSlug: "ghost",
	})
	outcome := f.gate.Authorize(context.Background(), req, Requirements{
		GlobalRoles: []models.GlobalRole{models.RoleAdmin},
		TenantRoles: []models.TenantRole{models.TenantRoleOwner},
	})

	assert.Equal(t, OutcomeDeniedTenantNotFound, outcome.Kind)
	f.memberships.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestGate_DevModeUnreachableWhenFlagUnset(t *testing.T) {
	f := newGateFixture(t, ModeStrict, nil)

	for _, path := range []string{"/api/v1/credentials", "/api/v1/me", "/healthz"} {
		outcome := f.gate.Authorize(context.Background(), newRequest("localhost:8080", path, nil), Requirements{})
		assert.Equal(t, OutcomeDeniedUnauthenticated, outcome.Kind, path)
	}

	f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestGate_DevMode(t *testing.T) {
	ctx := context.Background()
	devUser := models.NewUser("dev@localhost.dev", "Local Developer", models.RoleAdmin)

	t.Run("no credential uses the development principal without a tenant", func(t *testing.T) {
		f := newGateFixture(t, ModeDevelopment, nil)
		f.users.On("GetByEmail", mock.Anything, "dev@localhost.dev").Return(devUser, nil).Once()

		outcome := f.gate.Authorize(ctx, newRequest("localhost:8080", "/api/v1/me", nil), Requirements{})

		require.True(t, outcome.Allowed())
		assert.Equal(t, devUser.ID.String(), outcome.Context.Principal().ID)
		assert.Nil(t, outcome.Context.Tenant())
		assert.True(t, outcome.Context.DevelopmentMode())
		f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("presented tokens are still verified", func(t *testing.T) {
		f := newGateFixture(t, ModeDevelopment, nil)
		f.verifier.On("Verify", mock.Anything, "Bearer forged").Return(nil, oidc.ErrInvalidToken)

		req := newRequest("localhost:8080", "/api/v1/me", map[string]string{"Authorization": "Bearer forged"})
		outcome := f.gate.Authorize(ctx, req, Requirements{})

		assert.Equal(t, OutcomeDeniedUnauthenticated, outcome.Kind)
		f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})

	t.Run("tenant roles still require a tenant", func(t *testing.T) {
		f := newGateFixture(t, ModeDevelopment, nil)
		f.users.On("GetByEmail", mock.Anything, "dev@localhost.dev").Return(devUser, nil).Once()

		outcome := f.gate.Authorize(ctx, newRequest("localhost:8080", "/api/v1/credentials", nil),
			Requirements{TenantRoles: []models.TenantRole{models.TenantRoleMember}})

		assert.Equal(t, OutcomeDeniedInsufficientTenantRole, outcome.Kind)
	})

	t.Run("user store failure is an error", func(t *testing.T) {
		f := newGateFixture(t, ModeDevelopment, nil)
		f.users.On("GetByEmail", mock.Anything, "dev@localhost.dev").Return(nil, errors.New("db down"))

		outcome := f.gate.Authorize(ctx, newRequest("localhost:8080", "/api/v1/me", nil), Requirements{})
		assert.Equal(t, OutcomeError, outcome.Kind)
	})
}

func TestGate_OptionalAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("no credential yields the anonymous principal", func(t *testing.T) {
		f := newGateFixture(t, ModeStrict, nil)

		outcome := f.gate.AuthorizeOptional(ctx, newRequest("app.example", "/api/v1/me", nil), Requirements{TenantOptional: true})

		require.True(t, outcome.Allowed())
		principal := outcome.Context.Principal()
		assert.True(t, principal.IsAnonymous())
		assert.Nil(t, outcome.Context.Tenant())
	})

	t.Run("anonymous principal still resolves a named tenant", func(t *testing.T) {
		f := newGateFixture(t, ModeStrict, nil)
		acme := activeTenant("acme")
		f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme}, nil)

		outcome := f.gate.AuthorizeOptional(ctx, newRequest("acme.app.example", "/api/v1/me", nil), Requirements{TenantOptional: true})

		require.True(t, outcome.Allowed())
		assert.Equal(t, acme.ID, outcome.Context.TenantID())
		assert.Nil(t, outcome.Context.Membership())
		f.memberships.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("anonymous principal cannot satisfy role requirements", func(t *testing.T) {
		f := newGateFixture(t, ModeStrict, nil)

		outcome := f.gate.AuthorizeOptional(ctx, newRequest("app.example", "/api/v1/me", nil),
			Requirements{GlobalRoles: []models.GlobalRole{models.RoleViewer}, TenantOptional: true})

		assert.Equal(t, OutcomeDeniedUnauthenticated, outcome.Kind)
	})

	t.Run("unknown tenant is still denied", func(t *testing.T) {
		f := newGateFixture(t, ModeStrict, nil)
		f.tenants.On("FindByIdentifier", mock.Anything, "ghost").Return([]*models.Tenant{}, nil)

		outcome := f.gate.AuthorizeOptional(ctx, newRequest("app.example", "/api/v1/me?tenantSlug=ghost", nil), Requirements{TenantOptional: true})
		assert.Equal(t, OutcomeDeniedTenantNotFound, outcome.Kind)
	})
}

func TestGate_RequestContextIsImmutable(t *testing.T) {
	f := newGateFixture(t, ModeStrict, nil)
	acme := activeTenant("acme")

	f.verifier.On("Verify", mock.Anything, "Bearer token").Return(claimsFor("u1"), nil)
	f.tenants.On("FindByIdentifier", mock.Anything, "acme").Return([]*models.Tenant{acme}, nil)
	f.memberships.On("Get", mock.Anything, acme.ID, "u1").Return(membershipOf(acme, "u1", models.TenantRoleAdmin), nil)

	req := newRequest("acme.app.example", "/api/v1/credentials", map[string]string{"Authorization": "Bearer token"})
	outcome := f.gate.Authorize(context.Background(), req, Requirements{})
	require.True(t, outcome.Allowed())

	rc := outcome.Context
	rc.Tenant().IsActive = false
	rc.Membership().Role = models.TenantRoleOwner
	acme.Name = "renamed after the decision"

	assert.True(t, rc.Tenant().IsActive)
	assert.Equal(t, models.TenantRoleAdmin, rc.TenantRole())
	assert.Equal(t, "acme inc", rc.Tenant().Name)

	ctx := WithRequestContext(context.Background(), rc)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, rc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestGate_RecordsDecisions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	f := newGateFixture(t, ModeStrict, provider.Meter("test"))

	f.gate.Authorize(context.Background(), newRequest("app.example", "/api/v1/me", nil), Requirements{})
	f.gate.Authorize(context.Background(), newRequest("app.example", "/api/v1/me", nil), Requirements{})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "authz.decisions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				assert.Equal(t, string(OutcomeDeniedUnauthenticated), outcome.AsString())
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestNewGate_RequiresVerifierOutsideDevelopment(t *testing.T) {
	_, err := NewGate(GateConfig{Mode: ModeStrict})
	assert.Error(t, err)
}
