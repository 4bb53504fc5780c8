package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/scenario_manager/internal/metrics"
	"github.com/Skotchmaster/scenario_manager/internal/middleware"
	"github.com/Skotchmaster/scenario_manager/internal/models"
	"github.com/Skotchmaster/scenario_manager/internal/ratelimit"
	"github.com/Skotchmaster/scenario_manager/internal/refresh"
	"github.com/Skotchmaster/scenario_manager/pkg/tokens"
)

type Deps struct {
	AuthHandler *AuthHTTP
	Issuer      *tokens.Issuer
	Refresh     *refresh.Store
	// Limiter and Metrics are optional.
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	Ready   func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	access := middleware.RequireBearer(middleware.AccessStrategy{Issuer: d.Issuer})
	refreshMw := middleware.RequireBearer(middleware.RefreshStrategy{Issuer: d.Issuer, Store: d.Refresh})

	var registerMw, loginMw []echo.MiddlewareFunc
	if d.Limiter != nil {
		registerMw = append(registerMw, d.Limiter.Middleware("register"))
		loginMw = append(loginMw, d.Limiter.Middleware("login"))
	}

	g := e.Group("/auth")
	g.POST("/register", d.AuthHandler.Register, registerMw...)
	g.POST("/login", d.AuthHandler.Login, loginMw...)
	g.POST("/refresh", d.AuthHandler.Refresh, refreshMw)

	private := g.Group("")
	private.Use(access)

	private.POST("/logout", d.AuthHandler.LogOut)
	private.GET("/profile", d.AuthHandler.Profile)
	private.GET("/users/:id", d.AuthHandler.GetUser, middleware.RequireRoles(models.RoleAdmin))
}
