package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evalauth/internal/service"
)

type errorMapping struct {
	target  error
	status  int
	message string // empty: use the error text, which is safe for these kinds
}

// errorMappings is ordered; the first match wins.
var errorMappings = []errorMapping{
	{service.ErrInvalidInput, http.StatusBadRequest, ""},
	{service.ErrWeakPassword, http.StatusBadRequest, ""},
	{service.ErrInvalidRole, http.StatusBadRequest, "role must be CONSULTANT or CRAFTSMAN"},
	{service.ErrExpired, http.StatusBadRequest, "token expired"},
	{service.ErrAlreadyExists, http.StatusConflict, "email already exists"},
	{service.ErrInvalidTransition, http.StatusConflict, ""},
	{service.ErrNotFound, http.StatusNotFound, "not found"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{service.ErrAccessDenied, http.StatusUnauthorized, "unauthorized"},
	{service.ErrEmailNotVerified, http.StatusForbidden, "email not verified"},
	{service.ErrAwaitingApproval, http.StatusForbidden, "account awaiting approval"},
	{service.ErrRejected, http.StatusForbidden, "account rejected"},
	{service.ErrStoreUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable"},
	{service.ErrRevocationFailed, http.StatusServiceUnavailable, "logout could not be completed"},
}

// writeError translates a service error into a JSON response.  Unknown
// errors become an opaque 500.
func writeError(c echo.Context, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return c.JSON(m.status, echo.Map{"error": msg})
		}
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
