package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/tenant-gateway/app"
	"github.com/upb/tenant-gateway/internal/auth"
	appmw "github.com/upb/tenant-gateway/middleware"
	"github.com/upb/tenant-gateway/models"
)

var (
	readRoles  = []models.TenantRole{models.TenantRoleOwner, models.TenantRoleAdmin, models.TenantRoleMember, models.TenantRoleViewer}
	writeRoles = []models.TenantRole{models.TenantRoleOwner, models.TenantRoleAdmin}
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmw.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.HeaderTenantID, auth.HeaderTenantSlug},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	r.Method(http.MethodGet, "/metrics", deps.Telemetry.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.With(deps.AuthMiddleware.Optional(auth.Requirements{TenantOptional: true})).
			Get("/me", deps.MeHandler.HandleMe)

		// Tenant-scoped credential vault
		r.Route("/credentials", func(r chi.Router) {
			r.With(deps.AuthMiddleware.RequireTenantRoles(readRoles...)).Group(func(r chi.Router) {
				r.Get("/", deps.CredentialHandler.HandleList)
				r.Get("/{name}", deps.CredentialHandler.HandleGet)
			})
			r.With(deps.AuthMiddleware.RequireTenantRoles(writeRoles...)).Group(func(r chi.Router) {
				r.Put("/{name}", deps.CredentialHandler.HandlePut)
				r.Delete("/{name}", deps.CredentialHandler.HandleDelete)
			})
		})

		// Audit trail of the resolved tenant
		r.With(deps.AuthMiddleware.RequireTenantRoles(writeRoles...)).
			Get("/audit", deps.AuditHandler.HandleList)

		// Tenant administration (require global admin role)
		r.Route("/admin/tenants", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireGlobalRoles(models.RoleAdmin))
			r.Post("/", deps.TenantHandler.HandleProvision)
			r.Get("/{identifier}", deps.TenantHandler.HandleGet)
			r.Patch("/{identifier}", deps.TenantHandler.HandleUpdate)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
