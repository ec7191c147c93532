package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/repositories"
	"go.uber.org/zap"
)

// Tenant signal names
const (
	HeaderTenantID   = "X-Tenant-ID"
	HeaderTenantSlug = "X-Tenant-Slug"
	QueryTenantID    = "tenantId"
	QueryTenantSlug  = "tenantSlug"
)

// SignalSource records which request signal selected the tenant
type SignalSource string

const (
	SourceNone       SignalSource = ""
	SourceHeaderID   SignalSource = "header_id"
	SourceHeaderSlug SignalSource = "header_slug"
	SourceSubdomain  SignalSource = "subdomain"
	SourceQuery      SignalSource = "query"
)

// exemptPrefixes are routes that never require a tenant
var exemptPrefixes = []string{"/healthz", "/readyz", "/metrics", "/docs", "/auth/"}

// IsExemptPath reports whether path may be served without a tenant
func IsExemptPath(path string) bool {
	for _, prefix := range exemptPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// RequestSignals are the request inputs that can name a tenant
type RequestSignals struct {
	TenantIDHeader   string
	TenantSlugHeader string
	Host             string
	QueryTenantID    string
	QueryTenantSlug  string
	Path             string
}

// SignalsFromRequest extracts tenant signals from an HTTP request
func SignalsFromRequest(r *http.Request) RequestSignals {
	query := r.URL.Query()
	return RequestSignals{
		TenantIDHeader:   strings.TrimSpace(r.Header.Get(HeaderTenantID)),
		TenantSlugHeader: strings.TrimSpace(r.Header.Get(HeaderTenantSlug)),
		Host:             r.Host,
		QueryTenantID:    strings.TrimSpace(query.Get(QueryTenantID)),
		QueryTenantSlug:  strings.TrimSpace(query.Get(QueryTenantSlug)),
		Path:             r.URL.Path,
	}
}

// Identifier returns the first non-empty tenant signal in priority order:
// id header, slug header, subdomain, then query parameters.
func (s RequestSignals) Identifier(baseDomain string) (string, SignalSource) {
	if s.TenantIDHeader != "" {
		return s.TenantIDHeader, SourceHeaderID
	}
	if s.TenantSlugHeader != "" {
		return s.TenantSlugHeader, SourceHeaderSlug
	}
	if sub := subdomain(s.Host, baseDomain); sub != "" {
		return sub, SourceSubdomain
	}
	if s.QueryTenantID != "" {
		return s.QueryTenantID, SourceQuery
	}
	if s.QueryTenantSlug != "" {
		return s.QueryTenantSlug, SourceQuery
	}
	return "", SourceNone
}

// subdomain returns the leftmost label of a host with more than two labels.
// When baseDomain is set the host must sit directly under it.
func subdomain(host, baseDomain string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}

	if baseDomain != "" {
		base := "." + strings.Trim(strings.ToLower(baseDomain), ".")
		if !strings.HasSuffix(host, base) {
			return ""
		}
		label := strings.TrimSuffix(host, base)
		if label == "" || strings.Contains(label, ".") {
			return ""
		}
		return label
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return ""
	}
	return labels[0]
}

// TenantContext is the tenant a request was resolved to
type TenantContext struct {
	Tenant     *models.Tenant
	Membership *models.Membership
	Source     SignalSource
}

// Role returns the caller's tenant role, or "" without a membership
func (tc *TenantContext) Role() models.TenantRole {
	if tc == nil || tc.Membership == nil {
		return ""
	}
	return tc.Membership.Role
}

// TenantResolver resolves the tenant named by a request
type TenantResolver struct {
	tenants     repositories.TenantRepository
	memberships repositories.MembershipRepository
	mode        Mode
	baseDomain  string
	logger      *zap.Logger
}

// NewTenantResolver creates a new tenant resolver
func NewTenantResolver(tenants repositories.TenantRepository, memberships repositories.MembershipRepository, mode Mode, baseDomain string, logger *zap.Logger) *TenantResolver {
	return &TenantResolver{
		tenants:     tenants,
		memberships: memberships,
		mode:        mode,
		baseDomain:  baseDomain,
		logger:      logger,
	}
}

// Resolve looks up the tenant named by signals. A nil context with a nil error
// means the request proceeds without a tenant. principal may be nil.
func (r *TenantResolver) Resolve(ctx context.Context, signals RequestSignals, principal *models.Principal) (*TenantContext, error) {
	identifier, source := signals.Identifier(r.baseDomain)
	if identifier == "" {
		if IsExemptPath(signals.Path) {
			return nil, nil
		}
		if r.mode.Development() && !principal.IsAnonymous() {
			return nil, nil
		}
		return nil, ErrNoTenant
	}

	matches, err := r.tenants.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, NewAuthError(KindInternal, "tenant lookup failed", err)
	}

	switch len(matches) {
	case 0:
		return nil, ErrTenantNotFound
	case 1:
	default:
		r.logger.Error("tenant identifier matches more than one tenant",
			zap.String("identifier", identifier),
			zap.String("first_id", matches[0].ID.String()),
			zap.String("second_id", matches[1].ID.String()))
		return nil, ErrTenantConflict
	}

	tenant := matches[0]
	if !tenant.IsActive {
		return nil, ErrTenantInactive
	}

	tc := &TenantContext{Tenant: tenant, Source: source}
	if principal.IsAnonymous() {
		return tc, nil
	}

	membership, err := r.memberships.Get(ctx, tenant.ID, principal.ID)
	switch {
	case err == nil:
		tc.Membership = membership
	case errors.Is(err, repositories.ErrNotFound):
	default:
		return nil, NewAuthError(KindInternal, "membership lookup failed", err)
	}

	return tc, nil
}
