// Package api exposes the read side of the analysis engine over HTTP. It
// serves fleet status, per-device telemetry windows, alert history with a
// resolve operation, and consumption forecasts.
package api

import (
	"errors"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/pkg/metrics"
)

// Server holds the handlers behind the REST API.
type Server struct {
	logger  *slog.Logger
	engine  *engine.Engine
	metrics *metrics.APIMetrics
}

// ServerConfig holds the configuration for the API Server.
type ServerConfig struct {
	Logger  *slog.Logger
	Engine  *engine.Engine
	Metrics *metrics.APIMetrics
}

// NewServer creates a new API Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	return &Server{
		logger:  cfg.Logger,
		engine:  cfg.Engine,
		metrics: cfg.Metrics,
	}, nil
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Route("/{deviceID}", func(r chi.Router) {
			r.Get("/status", s.handleDeviceStatus)
			r.Get("/telemetry", s.handleDeviceTelemetry)
			r.Get("/alerts", s.handleDeviceAlerts)
			r.Post("/alerts/{alertID}/resolve", s.handleResolveAlert)
			r.Get("/predictions", s.handleDevicePredictions)
		})
	})

	return r
}
