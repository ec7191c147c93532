package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/oidc"
	"github.com/upb/tenant-gateway/repositories"
	"go.uber.org/zap"
)

// rolePriority is the order in which role claims are matched
var rolePriority = []models.GlobalRole{models.RoleAdmin, models.RoleUser, models.RoleViewer}

// DevIdentity describes the fallback principal used in development mode
type DevIdentity struct {
	Email       string
	DisplayName string
}

// IdentityResolver maps verified claims to principals
type IdentityResolver struct {
	mode   Mode
	users  repositories.UserRepository
	dev    DevIdentity
	logger *zap.Logger

	devMu        sync.Mutex
	devPrincipal *models.Principal
}

// NewIdentityResolver creates a new identity resolver
func NewIdentityResolver(mode Mode, users repositories.UserRepository, dev DevIdentity, logger *zap.Logger) *IdentityResolver {
	return &IdentityResolver{
		mode:   mode,
		users:  users,
		dev:    dev,
		logger: logger,
	}
}

// Resolve maps a claim set to a principal. The principal id prefers oid, then sub.
func (r *IdentityResolver) Resolve(claims *oidc.ClaimSet) models.Principal {
	email := claims.ContactEmail()
	displayName := claims.Name
	if displayName == "" {
		displayName = email
	}

	return models.Principal{
		ID:              claims.StableID(),
		Email:           email,
		DisplayName:     displayName,
		GlobalRole:      GlobalRoleFromClaims(claims.Roles),
		IssuerSubjectID: claims.Subject,
	}
}

// ResolveDev returns the development fallback principal, creating its user record
// on first use. It fails with ErrDevModeDisabled unless the resolver runs in
// development mode.
func (r *IdentityResolver) ResolveDev(ctx context.Context) (models.Principal, error) {
	if !r.mode.Development() {
		return models.Principal{}, ErrDevModeDisabled
	}

	r.devMu.Lock()
	defer r.devMu.Unlock()

	if r.devPrincipal != nil {
		return *r.devPrincipal, nil
	}

	user, err := r.users.GetByEmail(ctx, r.dev.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		user = models.NewUser(r.dev.Email, r.dev.DisplayName, models.RoleAdmin)
		err = r.users.Create(ctx, user)
		if errors.Is(err, repositories.ErrDuplicate) {
			// Another instance created it first.
			user, err = r.users.GetByEmail(ctx, r.dev.Email)
		} else if err == nil {
			r.logger.Info("created development user", zap.String("email", user.Email))
		}
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("failed to load development user: %w", err)
	}

	principal := models.PrincipalFromUser(user)
	r.devPrincipal = &principal
	return principal, nil
}

// GlobalRoleFromClaims picks the highest known role from the roles claim, defaulting to USER
func GlobalRoleFromClaims(roles []string) models.GlobalRole {
	for _, candidate := range rolePriority {
		for _, role := range roles {
			if strings.EqualFold(strings.TrimSpace(role), string(candidate)) {
				return candidate
			}
		}
	}
	return models.RoleUser
}
