// Package http serves the status of a running jobtrace process: health,
// run progress and span lifecycle statistics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jobtrace/internal/engine"
	"github.com/fyrsmithlabs/jobtrace/internal/telemetry"
)

// ProgressReporter is implemented by engine.Runner.
type ProgressReporter interface {
	Progress() engine.Summary
	Running() bool
}

// HealthReporter is implemented by telemetry.Telemetry.
type HealthReporter interface {
	Health() telemetry.HealthStatus
	IsEnabled() bool
}

// Sources are what the server reports on. Metrics and Meter may be nil.
type Sources struct {
	Progress ProgressReporter
	Health   HealthReporter
	// Metrics is served on /metrics.
	Metrics prometheus.Gatherer
	// Meter records request metrics for the server itself.
	Meter   metric.Meter
	Version string
}

// Server provides the status endpoints.
type Server struct {
	echo    *echo.Echo
	sources Sources
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new status server.
func NewServer(src Sources, logger *zap.Logger, cfg *Config) (*Server, error) {
	if src.Progress == nil {
		return nil, fmt.Errorf("progress reporter cannot be nil")
	}
	if src.Health == nil {
		return nil, fmt.Errorf("health reporter cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9464,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if src.Meter != nil {
		e.Use(NewHTTPMetrics(src.Meter, logger).MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		sources: src,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.sources.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.sources.Metrics, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
}

// handleHealth reports 503 while the exporters are degraded. A process
// without a collector is healthy.
func (s *Server) handleHealth(c echo.Context) error {
	if s.sources.Health.Health().Degraded {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	p := s.sources.Progress.Progress()
	status := "idle"
	if s.sources.Progress.Running() {
		status = "running"
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  status,
		Version: s.sources.Version,
		Progress: ProgressStatus{
			Jobs:      p.Jobs,
			DataFlows: p.DataFlows,
			Steps:     p.Steps,
			Actions:   p.Actions,
		},
		Telemetry: TelemetryStatus{
			Exporting: s.sources.Health.IsEnabled(),
			Degraded:  s.sources.Health.Health().Degraded,
		},
	})
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting status server", zap.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.echo.Shutdown(ctx)
}
