// Package api serves the read-only HTTP API over the lookup service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"collectwise/internal/lookup"
	"collectwise/internal/metrics"
)

// Options carries the router's optional collaborators.
type Options struct {
	Logger  *logrus.Logger
	Metrics metrics.Backend

	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler
}

// Endpoints lists the public routes, as reported by the 404 handler.
var Endpoints = []string{
	"GET /health",
	"GET /stats",
	"GET /accounts/:accountNumber",
	"GET /accounts?account_number=...",
}

// NewRouter builds the chi router for svc.
func NewRouter(svc *lookup.Service, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		svc: svc,
		log: logger,
		now: time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, metrics.OrNop(opts.Metrics)))
	r.Use(recoverJSON(logger))

	r.Get("/health", h.handleHealth)
	r.Get("/stats", h.handleStats)
	r.Get("/accounts", h.handleAccountQuery)
	r.Get("/accounts/", h.handleAccountPath)
	r.Get("/accounts/{accountNumber}", h.handleAccountPath)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.NotFound(h.handleNotFound)
	r.MethodNotAllowed(h.handleNotFound)
	return r
}
