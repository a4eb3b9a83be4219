package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/99minutos/identity-system/internal/api/handler"
	"github.com/99minutos/identity-system/internal/api/middleware"
	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/pkg/logger"

	_ "github.com/99minutos/identity-system/docs"
)

// Deps are the collaborators the router wires into handlers and middleware.
type Deps struct {
	AuthService ports.AuthService
	UserService ports.UserService
	Tokens      ports.TokenService
	Denylist    ports.RevocationStore
	Probes      map[string]handler.Probe
	Log         zerolog.Logger
	// Registerer receives the HTTP request metrics. Nil means the default
	// Prometheus registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestScope(d.Log))
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "identity",
		Registerer: d.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	// Every request passes the gate; public paths are let through inside it.
	gate := middleware.NewAuthGate(d.Tokens, d.Denylist, middleware.DefaultPublicPaths(), d.Log)
	e.Use(gate.Middleware())

	// --- Health, metrics and docs (public) ---
	healthHandler := handler.NewHealthHandler(d.Probes)
	e.GET("/", healthHandler.Root)
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/docs/*", echoSwagger.WrapHandler)

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(d.AuthService)
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/verify", authHandler.Verify)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.PUT("/forgot-password", authHandler.ResetPassword)
	auth.POST("/send-verification-email/:username", authHandler.SendVerification)
	auth.POST("/logout", authHandler.Logout)

	// --- Account routes (bearer) ---
	userHandler := handler.NewUserHandler(d.UserService)
	users := e.Group("/users/me")
	users.GET("", userHandler.Me)
	users.PATCH("", userHandler.UpdateDetails)
	users.DELETE("", userHandler.Deactivate)
	users.PUT("/password", userHandler.ChangePassword)

	// --- Admin routes ---
	admin := e.Group("/admin", middleware.RBAC(domain.RoleAdmin))
	admin.GET("/users/:id", userHandler.GetUser)

	return e
}

// requestScope attaches a logger carrying the request id to the request
// context. It must run after the RequestID middleware.
func requestScope(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			reqLog := log.With().Str("request_id", id).Logger()
			c.SetRequest(c.Request().WithContext(logger.WithContext(c.Request().Context(), reqLog)))
			return next(c)
		}
	}
}

// requestLogger writes one access log line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			reqLog := logger.FromContext(c.Request().Context(), log)
			ev := reqLog.Info()
			if v.Status >= 500 {
				ev = reqLog.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
