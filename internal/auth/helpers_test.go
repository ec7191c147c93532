package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/oidc"
	"github.com/upb/tenant-gateway/repositories/mocks"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// MockVerifier is a mock implementation of TokenVerifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, authorizationHeader string) (*oidc.ClaimSet, error) {
	args := m.Called(ctx, authorizationHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oidc.ClaimSet), args.Error(1)
}

type gateFixture struct {
	gate        *Gate
	verifier    *MockVerifier
	tenants     *mocks.TenantRepository
	memberships *mocks.MembershipRepository
	users       *mocks.UserRepository
}

func newGateFixture(t *testing.T, mode Mode, meter metric.Meter) *gateFixture {
	t.Helper()
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("test")
	}

	f := &gateFixture{
		verifier:    new(MockVerifier),
		tenants:     new(mocks.TenantRepository),
		memberships: new(mocks.MembershipRepository),
		users:       new(mocks.UserRepository),
	}

	logger := zap.NewNop()
	gate, err := NewGate(GateConfig{
		Mode:       mode,
		Verifier:   f.verifier,
		Identities: NewIdentityResolver(mode, f.users, DevIdentity{Email: "dev@localhost.dev", DisplayName: "Local Developer"}, logger),
		Tenants:    NewTenantResolver(f.tenants, f.memberships, mode, "", logger),
		Tracer:     tracenoop.NewTracerProvider().Tracer("test"),
		Meter:      meter,
		Logger:     logger,
	})
	require.NoError(t, err)
	f.gate = gate
	return f
}

func (f *gateFixture) assertExpectations(t *testing.T) {
	f.verifier.AssertExpectations(t)
	f.tenants.AssertExpectations(t)
	f.memberships.AssertExpectations(t)
	f.users.AssertExpectations(t)
}

func claimsFor(id string, roles ...string) *oidc.ClaimSet {
	return &oidc.ClaimSet{
		Subject:  "sub-" + id,
		ObjectID: id,
		Email:    id + "@example.com",
		Name:     id,
		Roles:    roles,
	}
}

func activeTenant(slug string) *models.Tenant {
	tenant := models.NewTenant(slug+" inc", slug)
	tenant.SubscriptionStatus = models.SubscriptionActive
	return tenant
}

func inactiveTenant(slug string) *models.Tenant {
	tenant := activeTenant(slug)
	tenant.IsActive = false
	return tenant
}

func membershipOf(tenant *models.Tenant, userID string, role models.TenantRole) *models.Membership {
	return models.NewMembership(tenant.ID, userID, role)
}

var anyTenantID = mock.AnythingOfType("uuid.UUID")
