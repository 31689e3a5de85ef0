package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sipcard/dispense/internal/api/handler"
	"github.com/sipcard/dispense/internal/core/ports"
)

// TokenVerifier checks an access token and returns what it proves.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*ports.AccessClaims, error)
}

// Auth validates the access token and injects its claims into the context.
// A missing header is a plain 401; a bad token surfaces as
// domain.ErrInvalidToken so clients can tell the two apart.
func Auth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			token, ok := handler.BearerToken(c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := verifier.VerifyAccessToken(token)
			if err != nil {
				return err
			}

			c.Set(handler.CtxUserID, claims.UserID)
			c.Set(handler.CtxRole, claims.Role)
			c.Set(handler.CtxEmail, claims.Email)

			return next(c)
		}
	}
}
