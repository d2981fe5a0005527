package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // string
	CtxUserRoleKey     = "user_role"     // model.Role
	CtxTokenVersionKey = "token_version" // int
)

// AuthJWT validates the bearer access token and stores sub, role and tv on
// the echo context.
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !authenticate(c, cfg) {
				return c.JSON(http.StatusUnauthorized, errorJSON("auth.unauthorized"))
			}
			return next(c)
		}
	}
}

// OptionalAuthJWT identifies the caller when a valid token is present and
// lets anonymous requests through untouched.
func OptionalAuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" && !authenticate(c, cfg) {
				return c.JSON(http.StatusUnauthorized, errorJSON("auth.unauthorized"))
			}
			return next(c)
		}
	}
}

func authenticate(c echo.Context, cfg config.Config) bool {
	rawToken, ok := bearerToken(c.Request().Header.Get("Authorization"))
	if !ok {
		return false
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}

	userID, err := parseString(claims["sub"])
	if err != nil || userID == "" {
		return false
	}
	role, err := parseString(claims["role"])
	if err != nil || !model.Role(role).Valid() {
		return false
	}
	tv, err := parseInt(claims["tv"])
	if err != nil || tv < 0 {
		return false
	}

	c.Set(CtxUserIDKey, userID)
	c.Set(CtxUserRoleKey, model.Role(role))
	c.Set(CtxTokenVersionKey, tv)
	return true
}

// UserID returns the authenticated user id set by AuthJWT.
func UserID(c echo.Context) (string, bool) {
	id, ok := c.Get(CtxUserIDKey).(string)
	return id, ok && id != ""
}

func UserRole(c echo.Context) (model.Role, bool) {
	r, ok := c.Get(CtxUserRoleKey).(model.Role)
	return r, ok && r != ""
}

func bearerToken(authz string) (string, bool) {
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

func parseString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("invalid string")
	}
	return s, nil
}

func parseInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		i64, err := strconv.ParseInt(t, 10, 32)
		if err != nil {
			return 0, err
		}
		return int(i64), nil
	default:
		return 0, errors.New("invalid int")
	}
}
