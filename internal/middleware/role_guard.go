package middleware

import (
	"net/http"

	"planmarket/internal/domain/model"

	"github.com/labstack/echo/v4"
)

// RequireRole lets the request through when the caller holds one of roles.
// Must run after AuthJWT.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := UserRole(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("auth.unauthorized"))
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, errorJSON("auth.forbidden"))
		}
	}
}
