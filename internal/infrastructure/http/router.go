// Package http builds the ops listener: probes, Prometheus scrape endpoint
// and the API docs. It runs on its own port so none of it is reachable
// through the public API.
package http

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/sipcard/dispense/docs"
	"github.com/sipcard/dispense/internal/infrastructure/http/handlers"
)

// Options tune the ops router.
type Options struct {
	// Checks run on every readiness probe.
	Checks []handlers.Check
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	// Swagger mounts /swagger/*. Off in production.
	Swagger bool
}

// NewRouter builds and returns the ops Echo instance.
func NewRouter(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	readinessHandler := handlers.NewReadinessHandler(opts.Checks...)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	if opts.Swagger {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	return e
}
