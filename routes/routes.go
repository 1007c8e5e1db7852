package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nurksbr/siber-sub001/app"
	"github.com/nurksbr/siber-sub001/handlers"
	"github.com/nurksbr/siber-sub001/middleware"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	if deps.Config.Server.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logging(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware; credentials are needed for the session cookie
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Route gate runs before any protected page renders
	r.Use(deps.RouteGate.Handler)

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.LoginRateLimit).Post("/login", deps.AuthHandler.HandleLogin)
			r.Post("/register", deps.AuthHandler.HandleRegister)
			r.Get("/session", deps.AuthHandler.HandleSession)
			r.Post("/logout", deps.AuthHandler.HandleLogout)

			r.With(deps.AuthMiddleware.RequireAuth).Get("/me", deps.AuthHandler.HandleMe)
		})

		// Admin routes (require admin role)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole(models.RoleAdmin))
			r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				_ = utils.WriteOK(w, map[string]string{"status": "ok"})
			})
			r.Get("/audit", deps.AuditHandler.HandleList)
		})
	})

	// Server-rendered pages
	pages := handlers.NewPageHandler(deps.Logger)
	r.Get(deps.Config.Auth.LoginPath, pages.HandleLogin)
	r.Get("/", pages.Page("Ana Sayfa"))
	for _, prefix := range deps.Config.Auth.ProtectedPrefixes {
		r.Get(prefix, pages.Page(prefix))
		r.Get(prefix+"/*", pages.Page(prefix))
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
