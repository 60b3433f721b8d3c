// Package api exposes an admin HTTP surface over a workq engine: queue
// statistics, job inspection, enqueue, and dead-letter management.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/workq/engine"
)

// API serves the admin routes for one engine.
type API struct {
	eng       *engine.Engine
	logger    *slog.Logger
	validator *validator.Validate
}

// New creates an API from a workq Engine.
func New(eng *engine.Engine) *API {
	return &API{
		eng:       eng,
		logger:    eng.Logger(),
		validator: validator.New(),
	}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers every admin route into r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", a.stats)

		r.Get("/jobs", a.listJobs)
		r.Post("/jobs", a.enqueueJob)
		r.Get("/jobs/{jobId}", a.getJob)

		r.Get("/dlq", a.listDLQ)
		r.Delete("/dlq", a.purgeDLQ)
		r.Post("/dlq/{jobId}/replay", a.replayDLQ)
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
