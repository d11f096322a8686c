package app

import (
	"database/sql"
	"net/http"
	"time"

	"wyspamat/internal/app/observability"
	"wyspamat/internal/auth"
	"wyspamat/internal/billing"
	"wyspamat/internal/content"
	"wyspamat/internal/exercise"
	"wyspamat/internal/progress"
	"wyspamat/internal/sectiontest"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.AdminKeyBcrypt)
	limiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	contentSvc := content.NewService(db)
	exerciseSvc := exercise.NewService(db, contentSvc)
	progressSvc := progress.NewService(db, contentSvc)
	testSvc := sectiontest.NewService(db, contentSvc, exerciseSvc, progressSvc)
	billingSvc := billing.NewService(db)

	exerciseHandler := exercise.NewHandler(exerciseSvc, progressSvc)
	progressHandler := progress.NewHandler(progressSvc, contentSvc)
	testHandler := sectiontest.NewHandler(testSvc)
	billingHandler := billing.NewHandler(billingSvc)
	contentHandler := content.NewHandler(contentSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<!doctype html><title>wyspamat</title><h1>wyspamat scoring service</h1>"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(secure chi.Router) {
			secure.Use(verifier.RequireAuth)

			secure.With(RateLimitMiddleware(limiter)).Post("/attempts", exerciseHandler.RecordAttempt)
			secure.With(RateLimitMiddleware(limiter)).Post("/tests/submit", testHandler.Submit)

			secure.Get("/exercises/{exerciseID}/attempts", exerciseHandler.History)
			secure.Get("/islands/{islandID}/progress", progressHandler.IslandProgress)
			secure.Get("/sections/{sectionID}/progress", progressHandler.SectionProgress)
			secure.Get("/sections/{sectionID}/tests", testHandler.History)
			secure.Get("/courses/{courseID}/access", billingHandler.HasAccess)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(verifier.OptionalAuth)
			admin.Use(verifier.RequireRoles("admin"))
			admin.Get("/admin/exercises/export", contentHandler.ExportBank)
			admin.Post("/admin/exercises/import", contentHandler.ImportBank)
			admin.Get("/admin/stats", collector.MetricsHandler)
		})
	})

	return r
}
