package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/authvault/app"
	"github.com/upb/authvault/middleware"
	"github.com/upb/authvault/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	allowedOrigins := deps.Config.Server.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			middleware.HeaderAdminEmail, middleware.HeaderUserID, middleware.HeaderUserEmail,
		},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/me", deps.AuthHandler.HandleMe)
			r.Post("/refresh", deps.AuthHandler.HandleRefresh)
		})

		// Vault administration (require admin role)
		r.Route("/vault", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireAdmin)
			r.Use(deps.AdminLimiter.Middleware)

			r.Get("/status", deps.VaultHandler.HandleStatus)
			r.Post("/initialize", deps.VaultHandler.HandleInitialize)
			r.Post("/migrate", deps.VaultHandler.HandleMigrate)

			r.Route("/secrets", func(r chi.Router) {
				r.Get("/", deps.VaultHandler.HandleListSecrets)
				r.Post("/", deps.VaultHandler.HandleCreateSecret)
				r.Put("/{name}", deps.VaultHandler.HandleUpdateSecret)
				r.Delete("/{name}", deps.VaultHandler.HandleDeleteSecret)
				r.Get("/{name}/exists", deps.VaultHandler.HandleSecretExists)
				r.Get("/{name}/audit", deps.VaultHandler.HandleSecretAudit)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}
