// Package http wires the handler set into a chi route tree and hosts it on
// a plain net/http server.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/prometheus"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/handlers"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies needed to
// build the complete route tree.  Nil handlers skip their resource group.
type RouterConfig struct {
	// Handlers
	MoleculeHandler   *handlers.MoleculeHandler
	PredictionHandler *handlers.PredictionHandler
	SubmissionHandler *handlers.SubmissionHandler
	ResultHandler     *handlers.ResultHandler
	HealthHandler     *handlers.HealthHandler

	// Middleware
	ActorMiddleware   *middleware.ActorMiddleware
	CORSMiddleware    *middleware.CORSMiddleware
	LoggingMiddleware *middleware.LoggingMiddleware

	// Infrastructure
	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter constructs the HTTP route tree: global middleware, public probe
// endpoints, the metrics scrape endpoint, and the /api/v1 resource groups.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if cfg.CORSMiddleware != nil {
		r.Use(cfg.CORSMiddleware.Handler)
	}
	if cfg.LoggingMiddleware != nil {
		r.Use(cfg.LoggingMiddleware.Handler)
	}

	// Probe endpoints stay outside /api/v1 so orchestrators reach them
	// without actor headers.
	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}

	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.ActorMiddleware != nil {
			api.Use(cfg.ActorMiddleware.Handler)
		}

		registerMoleculeRoutes(api, cfg.MoleculeHandler)
		registerPredictionRoutes(api, cfg.PredictionHandler)
		registerSubmissionRoutes(api, cfg.SubmissionHandler, cfg.ResultHandler)
	})

	return r
}

// registerMoleculeRoutes mounts molecule endpoints under /molecules.
func registerMoleculeRoutes(r chi.Router, h *handlers.MoleculeHandler) {
	if h == nil {
		return
	}
	r.Route("/molecules", func(mr chi.Router) {
		mr.Post("/upload", h.Upload)
		mr.Get("/{moleculeID}", h.Get)
	})
}

// registerPredictionRoutes mounts prediction job endpoints under /predictions.
func registerPredictionRoutes(r chi.Router, h *handlers.PredictionHandler) {
	if h == nil {
		return
	}
	r.Route("/predictions", func(pr chi.Router) {
		pr.Get("/queue", h.QueueDepths)
		pr.Post("/{jobID}/retrigger", h.Retrigger)
	})
}

// registerSubmissionRoutes mounts submission lifecycle endpoints under
// /submissions, with the result endpoints nested per submission.
func registerSubmissionRoutes(r chi.Router, h *handlers.SubmissionHandler, rh *handlers.ResultHandler) {
	if h == nil {
		return
	}
	r.Route("/submissions", func(sr chi.Router) {
		sr.Get("/", h.List)
		sr.Post("/", h.Create)
		sr.Get("/status-counts", h.StatusCounts)

		sr.Route("/{submissionID}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Put("/molecules", h.UpdateMolecules)
			item.Post("/quote", h.SetQuote)
			item.Post("/transition", h.Transition)

			if rh != nil {
				item.Post("/results", rh.Attach)
				item.Get("/results", rh.Get)
				item.Get("/results/document", rh.DocumentURL)
				item.Post("/review", rh.Review)
			}
		})
	})
}
