package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/sflow/user-access/docs"
	"github.com/sflow/user-access/internal/api/handler"
	"github.com/sflow/user-access/internal/api/middleware"
	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
	"github.com/sflow/user-access/internal/infrastructure/http/handlers"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Authenticator ports.Authenticator
	Users         ports.UserService
	// Readiness lists the dependencies pinged by /health/ready, by name.
	Readiness map[string]handlers.Pinger
	Logger    zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Logger))

	// --- Health probes, metrics and docs (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- User routes ---
	userHandler := handler.NewUserHandler(deps.Users)

	v1 := e.Group("/api/v1", middleware.Authenticate(deps.Authenticator))
	users := v1.Group("/users")
	users.GET("/role/:role", userHandler.ListByRole, middleware.RequireRole(domain.ActionViewByRole))
	users.GET("/:id", userHandler.Get, middleware.RequireRole(domain.ActionViewUser))
	users.DELETE("/:id", userHandler.Delete, middleware.RequireRole(domain.ActionDeleteUser))

	return e
}

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
			evt := log.Info()
			if v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
