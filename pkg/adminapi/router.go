// Package adminapi provides the read-only HTTP surface both the name
// server and storage server expose alongside their TCP listener: health
// checks, Prometheus scraping, and (NM only) a membership/routing dump
// for operator visibility. None of it is reachable from the wire
// protocol's own client/SS traffic.
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/pkg/cluster"
	"github.com/filegrid/filegrid/pkg/metrics"
)

func baseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	return r
}

func mountCommon(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}
}

// NewNMRouter builds the NM's admin router: health, metrics, and
// membership/routing introspection.
func NewNMRouter(c *cluster.Cluster) http.Handler {
	r := baseRouter()
	mountCommon(r)

	r.Get("/nodes", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.Nodes())
	})
	r.Get("/users", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.Users())
	})
	r.Get("/routes", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.Routes())
	})

	return r
}

// NewSSRouter builds the SS's admin router: health and metrics only.
// File routing lives on the NM; the SS has nothing equivalent to expose
// beyond its own liveness.
func NewSSRouter() http.Handler {
	r := baseRouter()
	mountCommon(r)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("adminapi: encode response failed", logger.Err(err))
	}
}

// requestLogger mirrors the ambient request-logging middleware pattern:
// debug at start, info with status/duration at completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("adminapi request started",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("adminapi request completed",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration_ms", logger.Duration(start))
	})
}
