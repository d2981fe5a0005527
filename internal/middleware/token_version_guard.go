package middleware

import (
	"net/http"

	"planmarket/internal/repository"

	"github.com/labstack/echo/v4"
)

// TokenVersionGuard rejects tokens issued before the user's last force-logout
// and tokens of deactivated users.
func TokenVersionGuard(userRepo repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := UserID(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("auth.unauthorized"))
			}
			tv, ok := c.Get(CtxTokenVersionKey).(int)
			if !ok || tv < 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("auth.unauthorized"))
			}

			user, err := userRepo.FindByID(c.Request().Context(), userID)
			if err != nil || user == nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("auth.unauthorized"))
			}
			if user.TokenVersion != tv || !user.IsActive {
				return c.JSON(http.StatusUnauthorized, errorJSON("auth.unauthorized"))
			}
			return next(c)
		}
	}
}
