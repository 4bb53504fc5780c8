package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/scenario_manager/internal/authz"
	"github.com/Skotchmaster/scenario_manager/internal/models"
	"github.com/Skotchmaster/scenario_manager/internal/repo"
	"github.com/Skotchmaster/scenario_manager/pkg/logging"
)

const (
	CtxUserID    = "user_id"
	CtxRole      = "role"
	CtxPrincipal = "principal"
	CtxToken     = "bearer_token"
)

const invalidTokenMessage = "invalid or expired token"

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireBearer authenticates the request with strategy. Every token problem
// gets the same 401 so callers cannot tell which check failed.
func RequireBearer(strategy Strategy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			l := logging.FromContext(ctx).With("mw", "require_bearer")

			token := bearerToken(c)
			if token == "" {
				l.Warn("auth_failed", "status", 401, "reason", "missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, invalidTokenMessage)
			}

			p, err := strategy.Verify(ctx, token)
			switch {
			case err == nil:
			case errors.Is(err, ErrUnauthenticated):
				l.Warn("auth_failed", "status", 401, "reason", err.Error())
				return echo.NewHTTPError(http.StatusUnauthorized, invalidTokenMessage)
			case errors.Is(err, repo.ErrUserNotFound):
				l.Warn("auth_failed", "status", 404, "reason", "user not found")
				return echo.NewHTTPError(http.StatusNotFound, "user not found")
			default:
				l.Error("auth_failed", "status", 500, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}

			c.Set(CtxPrincipal, p)
			c.Set(CtxUserID, p.UserID)
			c.Set(CtxRole, string(p.Role))
			c.Set(CtxToken, token)
			return next(c)
		}
	}
}

// RequireRoles must run after RequireBearer with an access strategy.
func RequireRoles(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, invalidTokenMessage)
			}
			if err := authz.Authorize(p.Role, c.Request().Method+" "+c.Path(), roles...); err != nil {
				logging.FromContext(c.Request().Context()).Warn("forbidden",
					"status", 403, "user_id", p.UserID, "reason", err.Error())
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}

func PrincipalFrom(c echo.Context) *Principal {
	p, _ := c.Get(CtxPrincipal).(*Principal)
	return p
}

func TokenFrom(c echo.Context) string {
	s, _ := c.Get(CtxToken).(string)
	return s
}
