// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/archivarius/internal/config"
)

// Router assembles the operational HTTP surface.
type Router struct {
	handler *Handler
	mw      *Middleware
}

// NewRouter creates a router over the given handler and middleware
// factory.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	return &Router{handler: handler, mw: mw}
}

// SetupChi configures all routes on a Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware stack, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(APISecurityHeaders())

	// Probes get a permissive limit so monitoring agents can poll
	// every few seconds without tripping the API budget.
	r.Group(func(r chi.Router) {
		r.Use(router.mw.RateLimitHealth())
		r.Use(PrometheusMetrics())
		r.Get("/healthz", router.handler.HealthLive)
		r.Get("/readyz", router.handler.HealthReady)
	})

	// Prometheus scrape endpoint. Never rate limited: a throttled
	// scrape just becomes a gap in the series.
	r.Handle("/metrics", promhttp.Handler())

	// Read-only study API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.mw.RateLimitAPI())
		r.Use(PrometheusMetrics())

		r.Get("/status", router.handler.Status)
		r.Get("/studies", router.handler.ListStudies)
		r.Get("/studies/{hash}", router.handler.GetStudy)
		r.Get("/studies/{hash}/trials", router.handler.ListTrials)
	})

	return r
}

// NewServer builds the http.Server serving the operational surface,
// ready to hand to the supervisor's HTTP service wrapper.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		IdleTimeout:  60 * time.Second,
	}
}
