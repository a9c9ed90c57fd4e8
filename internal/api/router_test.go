// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestRouterRoutes(t *testing.T) {
	root := t.TempDir()
	study := studyFixture(t, "resnet50", "resnet-sweep")
	seedStudy(t, filepath.Join(root, "dev"), study,
		trialSpec{number: 1, lr: 0.01, objective: 0.74, best: true})

	router := newTestRouter(newTestHandler(root))
	hash := study.StudyHash.String()

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"liveness", http.MethodGet, "/healthz", http.StatusOK},
		{"readiness", http.MethodGet, "/readyz", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"status", http.MethodGet, "/api/v1/status", http.StatusOK},
		{"studies", http.MethodGet, "/api/v1/studies", http.StatusOK},
		{"study detail", http.MethodGet, "/api/v1/studies/" + hash, http.StatusOK},
		{"trials", http.MethodGet, "/api/v1/studies/" + hash + "/trials", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{"write rejected", http.MethodPost, "/api/v1/studies", http.StatusMethodNotAllowed},
		{"probe write rejected", http.MethodDelete, "/healthz", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.target, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouterAppliesGlobalMiddleware(t *testing.T) {
	router := newTestRouter(newTestHandler(t.TempDir()))

	rec := doGet(t, router, "/healthz")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}

	env := decodeEnvelope(t, rec)
	if env.Meta == nil || env.Meta.RequestID == "" {
		t.Errorf("Meta = %+v, want generated request ID", env.Meta)
	}
}

func TestMetricsEndpointExposesRequestSeries(t *testing.T) {
	router := newTestRouter(newTestHandler(t.TempDir()))

	// One API request so the request-duration series exists.
	doGet(t, router, "/api/v1/status")

	rec := doGet(t, router, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_request_duration_seconds") {
		t.Error("metrics output missing api_request_duration_seconds")
	}
}
