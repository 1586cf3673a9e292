package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pov-scribe/backend/internal/api/handlers"
	"github.com/pov-scribe/backend/internal/api/middleware"
	"github.com/pov-scribe/backend/internal/auth"
	"github.com/pov-scribe/backend/internal/config"
	"github.com/pov-scribe/backend/internal/db"
	"github.com/pov-scribe/backend/internal/job"
	"github.com/pov-scribe/backend/internal/pipeline"
)

func NewRouter(database *db.Database, jwtService *auth.JWTService, cfg *config.Config, jobQueue *job.JobQueue, svc *pipeline.Service, orch *pipeline.Orchestrator) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))

	// Handlers
	authHandler := handlers.NewAuthHandler(database, jwtService)
	runsHandler := handlers.NewRunsHandler(jobQueue, svc, database, cfg.UploadPath, cfg.MaxUploadBytes)
	jobHandler := handlers.NewJobHandler(jobQueue)
	settingsHandler := handlers.NewSettingsHandler(database)
	envHandler := handlers.NewEnvHandler(orch)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)

	r.Route("/api", func(r chi.Router) {
		// Auth (public, rate limited)
		r.With(loginLimiter.Handler, middleware.MaxBodySize(4<<10)).
			Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))

			// Auth
			r.Get("/auth/me", authHandler.Me)

			// Environment probe
			r.Get("/environment", envHandler.GetEnvironment)

			// Runs
			r.Post("/runs", runsHandler.CreateRun)
			r.Get("/runs/{id}/artifacts", runsHandler.ListArtifacts)
			r.Get("/runs/{id}/artifacts/{name}", runsHandler.DownloadArtifact)

			// Jobs
			r.Get("/jobs", jobHandler.ListJobs)
			r.Get("/jobs/{id}", jobHandler.GetJob)
			r.Post("/jobs/{id}/retry", jobHandler.RetryJob)
			r.Delete("/jobs/{id}", jobHandler.CancelJob)

			// Settings (admin only)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))
				r.Get("/settings", settingsHandler.GetSettings)
				r.Put("/settings", settingsHandler.UpdateSettings)
			})
		})
	})

	return r
}
