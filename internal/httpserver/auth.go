package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/scenario_manager/internal/middleware"
	"github.com/Skotchmaster/scenario_manager/internal/models"
	"github.com/Skotchmaster/scenario_manager/internal/service"
	"github.com/Skotchmaster/scenario_manager/pkg/logging"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

// httpError maps the service taxonomy onto status codes. Details of 5xx
// errors stay in the log.
func httpError(l *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "email already registered")
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	default:
		l.Error(op+"_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      models.Role(req.Role),
	})
	if err != nil {
		return httpError(l, "register", err)
	}

	return c.JSON(http.StatusCreated, authResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         toUserDTO(res.User),
		ExpiresIn:    res.ExpiresIn,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return httpError(l, "login", err)
	}

	return c.JSON(http.StatusOK, authResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         toUserDTO(res.User),
		ExpiresIn:    res.ExpiresIn,
	})
}

// Refresh runs behind RequireBearer with the refresh strategy.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	p := middleware.PrincipalFrom(c)
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	pair, err := h.Svc.RefreshTokens(ctx, p.UserID, middleware.TokenFrom(c))
	if err != nil {
		return httpError(l, "refresh", err)
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	p := middleware.PrincipalFrom(c)
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	if err := h.Svc.LogOut(ctx, p.UserID); err != nil {
		return httpError(l, "logout", err)
	}

	l.Info("successful_logout", "user_id", p.UserID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logout successful",
	})
}

// Profile answers from the access token claims alone.
func (h *AuthHTTP) Profile(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
	return c.JSON(http.StatusOK, profileResponse{ID: p.UserID, Email: p.Email, Role: p.Role})
}

func (h *AuthHTTP) GetUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_get_user")

	u, err := h.Svc.GetUser(ctx, c.Param("id"))
	if err != nil {
		return httpError(l, "get_user", err)
	}
	return c.JSON(http.StatusOK, toUserDTO(u))
}
