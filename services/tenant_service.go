package services

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/repositories"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// ProvisionTenantRequest describes a new tenant and its first owner
type ProvisionTenantRequest struct {
	Slug        string `json:"slug" validate:"required,tenantslug"`
	Name        string `json:"name" validate:"required,max=200"`
	OwnerUserID string `json:"owner_user_id" validate:"required,max=255"`
}

// TenantService manages tenant records on behalf of global administrators
type TenantService struct {
	tenants     repositories.TenantRepository
	memberships repositories.MembershipRepository
	txManager   repositories.TransactionManager
	logger      *zap.Logger
}

// NewTenantService creates a new TenantService instance
func NewTenantService(
	tenants repositories.TenantRepository,
	memberships repositories.MembershipRepository,
	txManager repositories.TransactionManager,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		tenants:     tenants,
		memberships: memberships,
		txManager:   txManager,
		logger:      logger,
	}
}

// Provision creates a tenant and its OWNER membership in one transaction
func (s *TenantService) Provision(ctx context.Context, req ProvisionTenantRequest) (*models.Tenant, error) {
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	req.Name = strings.TrimSpace(req.Name)
	req.OwnerUserID = strings.TrimSpace(req.OwnerUserID)

	if err := utils.ValidateStruct(&req); err != nil {
		domainErr := WrapError(ErrorTypeValidation, "invalid tenant", err)
		for field, msg := range utils.GetValidationFields(err) {
			domainErr.WithDetail(field, msg)
		}
		return nil, domainErr
	}

	tenant, err := WithTransactionResult(ctx, s.txManager, func(ctx context.Context) (*models.Tenant, error) {
		tenant := models.NewTenant(req.Name, req.Slug)
		if err := s.tenants.Create(ctx, tenant); err != nil {
			return nil, err
		}

		owner := models.NewMembership(tenant.ID, req.OwnerUserID, models.TenantRoleOwner)
		if err := s.memberships.Upsert(ctx, owner); err != nil {
			return nil, err
		}
		return tenant, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, WrapError(ErrorTypeConflict, "slug already exists", err).WithDetail("slug", req.Slug)
		}
		return nil, WrapInternal("failed to provision tenant", err)
	}

	s.logger.Info("tenant provisioned",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
		zap.String("owner", req.OwnerUserID))

	return tenant, nil
}

// Get returns the tenant whose id or slug equals identifier
func (s *TenantService) Get(ctx context.Context, identifier string) (*models.Tenant, error) {
	matches, err := s.tenants.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, WrapInternal("failed to look up tenant", err)
	}

	switch len(matches) {
	case 0:
		return nil, ErrTenantNotFound
	case 1:
		return matches[0], nil
	default:
		s.logger.Error("tenant identifier matches several tenants",
			zap.String("identifier", identifier),
			zap.Int("matches", len(matches)))
		return nil, ErrTenantsShared
	}
}

// SetActive activates or deactivates a tenant. Requests for an inactive
// tenant are refused from the next request on.
func (s *TenantService) SetActive(ctx context.Context, identifier string, active bool) (*models.Tenant, error) {
	tenant, err := s.Get(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if err := s.tenants.SetActive(ctx, tenant.ID, active); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, WrapInternal("failed to update tenant", err)
	}
	tenant.IsActive = active

	s.logger.Info("tenant activation changed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.Bool("active", active))

	return tenant, nil
}
