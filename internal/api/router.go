package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/api/handler"
	"github.com/sipcard/dispense/internal/api/middleware"
	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
)

// Deps are the services the public API is built on.
type Deps struct {
	Auth  ports.AuthService
	Cards ports.CardService
	Taps  handler.TapQueue
	Log   zerolog.Logger
	// Registerer receives the request metrics; nil means the default registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "dispense",
		Registerer: d.Registerer,
	}))

	authHandler := handler.NewAuthHandler(d.Auth)
	cardHandler := handler.NewCardHandler(d.Cards)
	tapHandler := handler.NewTapHandler(d.Taps, d.Log)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/sign-in", authHandler.SignIn)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/refresh-token", authHandler.RefreshToken)

	// --- Mobile routes (access token required) ---
	mobile := e.Group("/mobile", middleware.Auth(d.Auth))
	mobile.GET("/users/profile", authHandler.Profile)
	mobile.POST("/cards", cardHandler.Create, middleware.RBAC(domain.RoleAdmin))
	mobile.GET("/cards/:guid", cardHandler.Get)
	mobile.POST("/taps", tapHandler.Create)

	return e
}

// requestLogger writes one structured line per request. Authorization headers
// are never part of the logged values.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
