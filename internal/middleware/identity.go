package middleware

// identity.go holds the context keys written by Authorize and the accessors
// handlers and other middleware use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/utils"
)

const (
	ctxClaims      = "claims"
	ctxUserID      = "user_id"
	ctxRole        = "role"
	ctxAccessToken = "access_token"
)

// Claims returns the verified claims of the current request.
func Claims(c echo.Context) (utils.Claims, bool) {
	cl, ok := c.Get(ctxClaims).(utils.Claims)
	return cl, ok
}

// UserID returns the authenticated account id.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated role.
func Role(c echo.Context) (model.Role, bool) {
	r, ok := c.Get(ctxRole).(model.Role)
	return r, ok
}

// AccessToken returns the raw bearer token that authorized the request.
func AccessToken(c echo.Context) string {
	s, _ := c.Get(ctxAccessToken).(string)
	return s
}

// subject names the caller for rate-limit keys; "anon" before authorization.
func subject(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
