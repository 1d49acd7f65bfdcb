// SPDX-License-Identifier: MIT

// Package api exposes the job orchestration HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hoangtv090103/text-to-video/internal/config"
	"github.com/hoangtv090103/text-to-video/internal/health"
	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/orchestrator"
)

// Server is the HTTP front end over the orchestrator.
type Server struct {
	router    chi.Router
	orch      *orchestrator.Orchestrator
	checker   *health.Checker
	cfg       *config.Config
	uploadDir string
	logger    zerolog.Logger
}

// NewServer builds the router with its middleware stack.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, checker *health.Checker, uploadDir string) *Server {
	s := &Server{
		orch:      orch,
		checker:   checker,
		cfg:       cfg,
		uploadDir: uploadDir,
		logger:    log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.logMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(120, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs", s.handleList)
		r.Get("/jobs/{jobID}", s.handleStatus)
		r.Post("/jobs/{jobID}/cancel", s.handleCancel)
		r.Get("/jobs/{jobID}/download", s.handleDownload)
	})

	s.router = r
	return s
}

// Handler returns the root handler wrapped for trace propagation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "api")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", rid)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), rid)))
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger := log.WithContext(r.Context(), s.logger)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur(log.FieldDuration, time.Since(start)).
			Msg("request")
	})
}
