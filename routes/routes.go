package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/portal/app"
	"github.com/upb/portal/handlers"
	"github.com/upb/portal/middleware"
	"github.com/upb/portal/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Sign-in flow
	r.Get(cfg.Auth.LoginPath, deps.AuthHandler.HandleLogin)
	r.Get(cfg.Auth.SignInPath, deps.AuthHandler.HandleSignInPage)
	r.Post(cfg.Auth.SignInPath, deps.AuthHandler.HandleMagicLink)
	r.Get(cfg.Auth.CallbackPath, deps.AuthHandler.HandleCallback)
	r.Post("/auth/sign-out", deps.AuthHandler.HandleSignOut)

	access := deps.AccessMiddleware

	// Pages behind the presence policy
	r.Group(func(r chi.Router) {
		r.Use(access.RequireUser)
		r.Get("/dashboard", handlers.DashboardHandler(deps.Logger))

		r.With(access.RequireAdmin).Get("/admin", handlers.AdminHandler(recorderStats(deps), deps.Logger))
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(access.RequireUser)
		r.Get("/me", handlers.MeHandler(deps.Logger))

		r.Route("/admin", func(r chi.Router) {
			r.Use(access.RequireAdmin)
			r.Get("/access-events", handlers.ListAccessEventsHandler(deps.AccessEvents, deps.Logger))
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})

	return r
}

func recorderStats(deps *app.Dependencies) handlers.RecorderStats {
	if deps.Recorder == nil {
		return nil
	}
	return deps.Recorder
}
