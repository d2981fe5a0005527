package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/middleware"
	"planmarket/internal/repository"
	"planmarket/internal/usecase"
	"planmarket/internal/validator"

	"github.com/labstack/echo/v4"
)

const (
	refreshCookieName = "refresh"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
	refreshCookieTTL  = 30 * 24 * time.Hour
)

type AuthHandler struct {
	uc           *usecase.AuthUsecase
	ids          usecase.IDGenerator
	cookieSecure bool
}

func NewAuthHandler(uc *usecase.AuthUsecase, ids usecase.IDGenerator, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		uc:           uc,
		ids:          ids,
		cookieSecure: cfg.IsProd(),
	}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me, middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo))
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req usecase.AuthRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// Login answers with the access token and sets the refresh cookie plus a
// readable csrf cookie for the double-submit check on /auth/refresh.
func (h *AuthHandler) Login(c echo.Context) error {
	var req usecase.AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	res, err := h.uc.Login(c.Request().Context(), req, c.Request().UserAgent())
	if err != nil {
		return writeAuthError(c, err)
	}
	if err := h.setSessionCookies(c, res.RefreshTokenPlain); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res.Body)
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	rc, err := c.Cookie(refreshCookieName)
	if err != nil || rc.Value == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	if !h.csrfMatches(c) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: usecase.MsgForbidden})
	}

	res, err := h.uc.Refresh(c.Request().Context(), rc.Value, c.Request().UserAgent())
	if err != nil {
		if errors.Is(err, usecase.ErrSecurityIncident) {
			h.clearSessionCookies(c)
		}
		return writeAuthError(c, err)
	}
	if err := h.setSessionCookies(c, res.RefreshTokenPlain); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res.Body)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	rc, err := c.Cookie(refreshCookieName)
	if err != nil || rc.Value == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	if !h.csrfMatches(c) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: usecase.MsgForbidden})
	}
	if err := h.uc.Logout(c.Request().Context(), rc.Value); err != nil {
		return writeAuthError(c, err)
	}
	h.clearSessionCookies(c)
	return c.JSON(http.StatusOK, SuccessResponse{Message: "logged out"})
}

func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	out, err := h.uc.Me(c.Request().Context(), userID)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) csrfMatches(c echo.Context) bool {
	cc, err := c.Cookie(csrfCookieName)
	if err != nil || cc.Value == "" {
		return false
	}
	hv := c.Request().Header.Get(csrfHeaderName)
	return subtle.ConstantTimeCompare([]byte(cc.Value), []byte(hv)) == 1
}

func (h *AuthHandler) setSessionCookies(c echo.Context, refreshPlain string) error {
	csrf, err := h.ids.NewSecret()
	if err != nil {
		return err
	}
	exp := time.Now().Add(refreshCookieTTL)
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshPlain,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    csrf,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	return nil
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	for name, path := range map[string]string{refreshCookieName: "/auth", csrfCookieName: "/"} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			MaxAge:   -1,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// writeAuthError maps the sentinel errors of the auth flow.
func writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrValidation), errors.Is(err, validator.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	case errors.Is(err, usecase.ErrConflict), errors.Is(err, validator.ErrEmailAlreadyUsed):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "auth.emailAlreadyUsed"})
	case errors.Is(err, usecase.ErrUnauthorized), errors.Is(err, validator.ErrInvalidRefresh),
		errors.Is(err, usecase.ErrSecurityIncident):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	case errors.Is(err, usecase.ErrForbidden):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: usecase.MsgForbidden})
	}
	return writeError(c, err)
}
