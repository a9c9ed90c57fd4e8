// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
)

// RateLimitConfig defines rate limit parameters for a route group.
type RateLimitConfig struct {
	// Requests allowed per Window, keyed by client IP.
	Requests int
	Window   time.Duration
}

// RateLimitHealth is permissive limiting for the probe endpoints.
// Kubelets and monitoring agents poll these every few seconds, so the
// limit only exists to stop outright abuse.
var RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}

// Middleware builds Chi-compatible middleware from server configuration.
type Middleware struct {
	cfg config.ServerConfig
}

// NewMiddleware creates a middleware factory for the given server config.
func NewMiddleware(cfg config.ServerConfig) *Middleware {
	return &Middleware{cfg: cfg}
}

// RateLimitAPI returns the rate limiter for the JSON API group, using
// the configured request budget. A non-positive budget disables
// limiting entirely.
func (m *Middleware) RateLimitAPI() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitConfig{
		Requests: m.cfg.RateLimitReqs,
		Window:   m.cfg.RateLimitWindow,
	})
}

// RateLimitHealth returns the rate limiter for the probe endpoints.
func (m *Middleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitHealth)
}

// RateLimitCustom returns an IP-keyed rate limiter with the given
// parameters, or a pass-through middleware when the config disables
// limiting.
func (m *Middleware) RateLimitCustom(rc RateLimitConfig) func(http.Handler) http.Handler {
	if rc.Requests <= 0 || rc.Window <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(rc.Requests, rc.Window)
}

// RequestIDWithLogging returns a middleware that assigns every request
// an ID and threads it through the logging context, so handler logs and
// envelope metadata carry the same token. An inbound X-Request-ID is
// honored; otherwise one is generated before chi's RequestID middleware
// runs, so both layers agree on the value.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APISecurityHeaders returns a middleware that sets baseline security
// headers on every response. HSTS is added only when the request
// arrived over TLS or through a TLS-terminating proxy.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrometheusMetrics returns a middleware that records request count and
// latency per route. The chi route pattern is used as the endpoint
// label so path parameters don't explode metric cardinality; unmatched
// requests fall back to the raw path.
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}

			metrics.TrackActiveRequest(true)
			next.ServeHTTP(sw, r)
			metrics.TrackActiveRequest(false)

			// The route pattern is only known after routing ran.
			endpoint := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					endpoint = pattern
				}
			}
			metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(sw.status), time.Since(start))
		})
	}
}

// statusResponseWriter captures the status code written by a handler.
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
