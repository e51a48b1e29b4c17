// Package server provides the HTTP surface of the gateway: routing,
// middleware and the handlers that translate between HTTP and the
// completion router.
package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgegate/config"
	"edgegate/internal/providers"
)

// Server wraps the echo instance and its dependencies.
type Server struct {
	echo   *echo.Echo
	router *providers.Router
	cfg    *config.Config
}

// New creates the HTTP server with middleware and routes registered.
func New(cfg *config.Config, router *providers.Router) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(config.DefaultBodySizeLimit))
	e.Use(middleware.CORS())

	s := &Server{
		echo:   e,
		router: router,
		cfg:    cfg,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	if s.cfg.Metrics.Enabled {
		s.echo.GET(s.cfg.Metrics.Endpoint, echo.WrapHandler(promhttp.Handler()))
	}

	v1 := s.echo.Group("/v1", BearerAuth(s.cfg.Server.MasterKey))
	v1.POST("/chat/completions", s.handleChatCompletions)
	v1.POST("/chat/completions/structured", s.handleStructuredCompletions)
	v1.POST("/generate", s.handleGenerate)
	v1.GET("/models", s.handleListModels)
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving on the configured port. Blocks until shutdown.
func (s *Server) Start() error {
	return s.echo.Start(":" + s.cfg.Server.Port)
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
