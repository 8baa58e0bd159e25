// Package server implements HTTP server for health checks and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Config contains listen ports and paths. Empty paths use the defaults
// /health/live, /health/ready and /metrics.
type Config struct {
	HealthPort    int
	MetricsPort   int
	LivenessPath  string
	ReadinessPath string
	MetricsPath   string
}

func (c Config) withDefaults() Config {
	if c.LivenessPath == "" {
		c.LivenessPath = "/health/live"
	}
	if c.ReadinessPath == "" {
		c.ReadinessPath = "/health/ready"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	return c
}

// Server represents the HTTP server for health and metrics.
type Server struct {
	healthServer  *http.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewServer creates a new HTTP server. A nil registry disables the metrics
// server.
func NewServer(
	config Config,
	healthChecker HealthChecker,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	config = config.withDefaults()

	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.HealthPort),
		Handler:      HealthMux(config, healthChecker, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if registry != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(config.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", config.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return &Server{
		healthServer:  healthServer,
		metricsServer: metricsServer,
		logger:        logger,
	}
}

// HealthMux returns the liveness and readiness routes.
func HealthMux(config Config, healthChecker HealthChecker, logger *slog.Logger) *http.ServeMux {
	config = config.withDefaults()
	mux := http.NewServeMux()
	mux.HandleFunc(config.LivenessPath, LivenessHandler(healthChecker, logger))
	mux.HandleFunc(config.ReadinessPath, ReadinessHandler(healthChecker, logger))
	return mux
}

// Start starts the HTTP servers in the background.
func (s *Server) Start() error {
	s.serve("health", s.healthServer)
	if s.metricsServer != nil {
		s.serve("metrics", s.metricsServer)
	}
	return nil
}

func (s *Server) serve(name string, srv *http.Server) {
	go func() {
		s.logger.Info("starting "+name+" server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(name+" server failed", "error", err)
		}
	}()
}

// Shutdown gracefully shuts down the servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	servers := []*http.Server{s.healthServer}
	if s.metricsServer != nil {
		servers = append(servers, s.metricsServer)
	}

	errChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			errChan <- srv.Shutdown(ctx)
		}(srv)
	}

	var lastErr error
	for range servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}
