// Package http serves the peer review form API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apreview/internal/logging"
	"github.com/fyrsmithlabs/apreview/internal/review"
)

// Server provides HTTP endpoints for review sessions.
type Server struct {
	echo    *echo.Echo
	reviews *review.Service
	logger  *logging.Logger
	config  *Config
	limiter *ipLimiter
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// BodyLimit caps request bodies, e.g. "1M". Empty disables the cap.
	BodyLimit string
}

// NewServer creates a new HTTP server.
func NewServer(reviews *review.Service, logger *logging.Logger, cfg *Config) (*Server, error) {
	if reviews == nil {
		return nil, fmt.Errorf("review service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:      "localhost",
			Port:      8080,
			BodyLimit: "1M",
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		reviews: reviews,
		logger:  logger,
		config:  cfg,
	}
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	e.Use(s.requestLogger)
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())
	if s.limiter != nil {
		e.Use(s.rateLimit)
	}
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	s.registerRoutes()
	return s, nil
}

// requestContext carries the request ID into the request context so every
// log line of the request can be correlated.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			ctx := logging.WithRequestID(req.Context(), id)
			c.SetRequest(req.WithContext(ctx))
		}
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Let the error handler write the status before logging it.
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/questionnaire", s.handleQuestionnaire)
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.PATCH("/sessions/:id/answers", s.handleApplyAnswers)
	v1.POST("/sessions/:id/submit", s.handleSubmit)
	v1.POST("/sessions/:id/retry", s.handleRetry)
	v1.GET("/sessions/:id/submission.xlsx", s.handleWorkbook)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.Addr()))
	return s.echo.Start(s.Addr())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
