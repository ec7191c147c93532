package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TokenVerifier verifies an Authorization header value
type TokenVerifier interface {
	Verify(ctx context.Context, authorizationHeader string) (*oidc.ClaimSet, error)
}

// OutcomeKind is the result of an authorization decision
type OutcomeKind string

const (
	OutcomeAllowed                      OutcomeKind = "allowed"
	OutcomeDeniedUnauthenticated        OutcomeKind = "denied_unauthenticated"
	OutcomeDeniedNoTenant               OutcomeKind = "denied_no_tenant"
	OutcomeDeniedTenantNotFound         OutcomeKind = "denied_tenant_not_found"
	OutcomeDeniedTenantInactive         OutcomeKind = "denied_tenant_inactive"
	OutcomeDeniedInsufficientGlobalRole OutcomeKind = "denied_insufficient_global_role"
	OutcomeDeniedInsufficientTenantRole OutcomeKind = "denied_insufficient_tenant_role"
	OutcomeError                        OutcomeKind = "error"
)

// Outcome is exactly one authorization decision. Context is set only when allowed.
type Outcome struct {
	Kind    OutcomeKind
	Context *RequestContext
	Err     error
}

// Allowed reports whether the request may proceed
func (o Outcome) Allowed() bool {
	return o.Kind == OutcomeAllowed
}

// HTTPStatus maps the outcome to a response status code
func (o Outcome) HTTPStatus() int {
	switch o.Kind {
	case OutcomeAllowed:
		return http.StatusOK
	case OutcomeDeniedUnauthenticated:
		return http.StatusUnauthorized
	case OutcomeDeniedNoTenant:
		return http.StatusBadRequest
	case OutcomeDeniedTenantNotFound:
		return http.StatusNotFound
	case OutcomeDeniedTenantInactive, OutcomeDeniedInsufficientGlobalRole, OutcomeDeniedInsufficientTenantRole:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func outcomeFromError(err error) Outcome {
	var kind OutcomeKind
	switch KindOf(err) {
	case KindUnauthenticated, KindInvalidToken:
		kind = OutcomeDeniedUnauthenticated
	case KindNoTenant:
		kind = OutcomeDeniedNoTenant
	case KindTenantNotFound:
		kind = OutcomeDeniedTenantNotFound
	case KindTenantInactive:
		kind = OutcomeDeniedTenantInactive
	case KindInsufficientGlobalRole:
		kind = OutcomeDeniedInsufficientGlobalRole
	case KindInsufficientTenantRole:
		kind = OutcomeDeniedInsufficientTenantRole
	default:
		kind = OutcomeError
	}
	return Outcome{Kind: kind, Err: err}
}

// Requirements are the roles a route demands. Empty role sets are not checked.
type Requirements struct {
	GlobalRoles []models.GlobalRole
	TenantRoles []models.TenantRole
	// TenantOptional lets the request proceed without any tenant signal
	TenantOptional bool
}

// GateConfig holds the collaborators of a Gate
type GateConfig struct {
	Mode       Mode
	Verifier   TokenVerifier
	Identities *IdentityResolver
	Tenants    *TenantResolver
	Tracer     trace.Tracer
	Meter      metric.Meter
	Logger     *zap.Logger
}

// Gate runs the authorization pipeline: authenticate, resolve the tenant,
// check the global role, check the tenant role. The first failure decides.
type Gate struct {
	mode       Mode
	verifier   TokenVerifier
	identities *IdentityResolver
	tenants    *TenantResolver
	tracer     trace.Tracer
	logger     *zap.Logger

	decisions metric.Int64Counter
}

// NewGate creates a new authorization gate
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Verifier == nil && !cfg.Mode.Development() {
		return nil, errors.New("token verifier is required outside development mode")
	}
	if cfg.Identities == nil || cfg.Tenants == nil {
		return nil, errors.New("identity and tenant resolvers are required")
	}

	decisions, err := cfg.Meter.Int64Counter(
		"authz.decisions",
		metric.WithDescription("Authorization decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &Gate{
		mode:       cfg.Mode,
		verifier:   cfg.Verifier,
		identities: cfg.Identities,
		tenants:    cfg.Tenants,
		tracer:     cfg.Tracer,
		logger:     cfg.Logger,
		decisions:  decisions,
	}, nil
}

// Authorize requires a credential
func (g *Gate) Authorize(ctx context.Context, r *http.Request, req Requirements) Outcome {
	return g.evaluate(ctx, r.Header.Get("Authorization"), SignalsFromRequest(r), req, false)
}

// AuthorizeOptional runs the same pipeline but treats a request without any
// credential as the anonymous principal.
func (g *Gate) AuthorizeOptional(ctx context.Context, r *http.Request, req Requirements) Outcome {
	return g.evaluate(ctx, r.Header.Get("Authorization"), SignalsFromRequest(r), req, true)
}

func (g *Gate) evaluate(ctx context.Context, authorization string, signals RequestSignals, req Requirements, optional bool) Outcome {
	ctx, span := g.tracer.Start(ctx, "auth.authorize", trace.WithAttributes(
		attribute.Bool("auth.optional", optional),
		attribute.String("auth.mode", g.mode.String()),
	))
	defer span.End()

	outcome := g.decide(ctx, authorization, signals, req, optional)

	span.SetAttributes(attribute.String("auth.outcome", string(outcome.Kind)))
	if outcome.Kind == OutcomeError {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "authorization error")
	}
	g.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome.Kind))))
	g.log(signals, outcome)

	return outcome
}

func (g *Gate) decide(ctx context.Context, authorization string, signals RequestSignals, req Requirements, optional bool) Outcome {
	principal, err := g.authenticate(ctx, authorization, optional)
	if err != nil {
		return outcomeFromError(err)
	}

	if principal.IsAnonymous() && (len(req.GlobalRoles) > 0 || len(req.TenantRoles) > 0) {
		return outcomeFromError(ErrUnauthenticated)
	}

	tenant, err := g.tenants.Resolve(ctx, signals, &principal)
	if err != nil {
		if !(req.TenantOptional && errors.Is(err, ErrNoTenant)) {
			return outcomeFromError(err)
		}
	}

	if len(req.GlobalRoles) > 0 && !principal.HasAnyRole(req.GlobalRoles...) {
		return outcomeFromError(ErrInsufficientGlobalRole)
	}

	if len(req.TenantRoles) > 0 && !hasTenantRole(tenant, req.TenantRoles) {
		return outcomeFromError(ErrInsufficientTenantRole)
	}

	return Outcome{
		Kind:    OutcomeAllowed,
		Context: newRequestContext(principal, tenant, g.mode),
	}
}

// authenticate returns the caller's principal. An empty header yields the dev
// principal in development mode, or the anonymous principal when optional.
func (g *Gate) authenticate(ctx context.Context, authorization string, optional bool) (models.Principal, error) {
	if authorization == "" {
		switch {
		case g.mode.Development():
			principal, err := g.identities.ResolveDev(ctx)
			if err != nil {
				return models.Principal{}, NewAuthError(KindInternal, "development identity unavailable", err)
			}
			return principal, nil
		case optional:
			return models.Principal{}, nil
		default:
			return models.Principal{}, ErrUnauthenticated
		}
	}

	if g.verifier == nil {
		return models.Principal{}, ErrUnauthenticated
	}

	claims, err := g.verifier.Verify(ctx, authorization)
	if err != nil {
		switch {
		case errors.Is(err, oidc.ErrMissingToken):
			return models.Principal{}, NewAuthError(KindUnauthenticated, "bearer token required", err)
		case errors.Is(err, oidc.ErrMalformedToken), errors.Is(err, oidc.ErrInvalidToken):
			return models.Principal{}, NewAuthError(KindInvalidToken, "invalid or expired token", err)
		case errors.Is(err, oidc.ErrKeyUnavailable):
			return models.Principal{}, NewAuthError(KindKeyUnavailable, "signing key unavailable", err)
		default:
			return models.Principal{}, NewAuthError(KindInternal, "token verification failed", err)
		}
	}

	return g.identities.Resolve(claims), nil
}

func hasTenantRole(tenant *TenantContext, roles []models.TenantRole) bool {
	role := tenant.Role()
	if role == "" {
		return false
	}
	for _, r := range roles {
		if role == r {
			return true
		}
	}
	return false
}

func (g *Gate) log(signals RequestSignals, outcome Outcome) {
	fields := []zap.Field{
		zap.String("path", signals.Path),
		zap.String("outcome", string(outcome.Kind)),
	}
	if outcome.Context != nil {
		fields = append(fields, zap.String("principal_id", outcome.Context.Principal().ID))
		if tenant := outcome.Context.Tenant(); tenant != nil {
			fields = append(fields, zap.String("tenant_id", tenant.ID.String()))
		}
	}

	switch outcome.Kind {
	case OutcomeAllowed:
		g.logger.Debug("request authorized", fields...)
	case OutcomeError:
		g.logger.Error("authorization error", append(fields, zap.Error(outcome.Err))...)
	default:
		g.logger.Info("request denied", append(fields, zap.Error(outcome.Err))...)
	}
}
