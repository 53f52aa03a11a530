package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evalauth/internal/utils"
)

// TokenAuthorizer verifies an access token and checks the denylist.
type TokenAuthorizer interface {
	Authorize(ctx context.Context, rawAccess string) (utils.Claims, error)
}

// Authorize returns an Echo middleware that requires a valid, unrevoked
// Bearer access token.  On success the claims, account id, role and raw
// token are stored on the context; every failure is a uniform 401.
func Authorize(a TokenAuthorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			raw = strings.TrimSpace(raw)
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := a.Authorize(c.Request().Context(), raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			c.Set(ctxClaims, claims)
			c.Set(ctxUserID, claims.SubjectID)
			c.Set(ctxRole, claims.Role)
			c.Set(ctxAccessToken, raw)
			return next(c)
		}
	}
}
