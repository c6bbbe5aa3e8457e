package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/metrics"
)

// Server is the operational listener: metrics and health only.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	handler    http.Handler
	check      HealthCheck
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Config holds server configuration
type Config struct {
	Addr        string
	MetricsPath string
	Health      HealthCheck // optional
}

// Health is the /healthz payload
type Health struct {
	Status string `json:"status"`
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, reg *metrics.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{logger: logger, check: cfg.Health}

	mux := http.NewServeMux()
	mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.handler = metrics.LoggingMiddleware(logger)(metrics.HTTPMiddleware(reg)(mux))
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler chain
func (s *Server) Handler() http.Handler { return s.handler }

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.check != nil {
		if err := s.check(r.Context()); err != nil {
			status := response.StatusFor(err)
			if status == http.StatusInternalServerError {
				status = http.StatusServiceUnavailable
			}
			s.logger.Warn("health check failed", zap.Error(err))
			response.Error(w, status, err)
			return
		}
	}
	response.JSON(w, http.StatusOK, Health{Status: "ok"})
}
