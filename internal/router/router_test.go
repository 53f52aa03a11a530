package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/evalauth/internal/handler"
	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/service"
	"github.com/iliyamo/evalauth/internal/utils"
)

type roleAuthorizer struct{ role model.Role }

func (a roleAuthorizer) Authorize(context.Context, string) (utils.Claims, error) {
	return utils.Claims{SubjectID: 4, Role: a.role}, nil
}

type noopCreds struct{}

func (noopCreds) Register(context.Context, service.Registration) (model.PublicAccount, error) {
	return model.PublicAccount{}, nil
}
func (noopCreds) Login(context.Context, string, string) (service.Session, error) {
	return service.Session{}, nil
}
func (noopCreds) ForgotPassword(context.Context, string) error { return nil }
func (noopCreds) ResetPassword(context.Context, string, string) error { return nil }
func (noopCreds) VerifyEmail(context.Context, string) error { return nil }
func (noopCreds) Logout(context.Context, uint64, string) error { return nil }
func (noopCreds) Profile(_ context.Context, id uint64) (model.PublicAccount, error) {
	return model.PublicAccount{ID: id}, nil
}

type noopRefresher struct{}

func (noopRefresher) Refresh(context.Context, string) (model.TokenPair, error) {
	return model.TokenPair{}, nil
}

type noopApprovals struct{}

func (noopApprovals) ListAccounts(context.Context, model.AccountFilter) ([]model.PublicAccount, error) {
	return nil, nil
}
func (noopApprovals) UpdateStatus(context.Context, uint64, model.Status) (model.PublicAccount, error) {
	return model.PublicAccount{}, nil
}

func newEcho(role model.Role, limited *int) *echo.Echo {
	e := echo.New()
	d := Deps{
		Auth:       handler.NewAuthHandler(noopCreds{}, noopRefresher{}),
		Admin:      handler.NewAdminHandler(noopApprovals{}),
		Authorizer: roleAuthorizer{role: role},
	}
	if limited != nil {
		d.RateLimit = func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				*limited++
				return next(c)
			}
		}
	}
	RegisterRoutes(e, d)
	return e
}

func do(e *echo.Echo, method, path, bearer, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRoutes(t *testing.T) {
	var limited int
	e := newEcho(model.RoleConsultant, &limited)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "", ""))
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/me", "", ""))
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/v1/me", "tok", ""))
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/v1/auth/logout", "tok", ""))
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/v1/auth/logout", "", ""))
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/v1/admin/accounts", "tok", ""))

	before := limited
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/v1/auth/login", "", `{"email":"a@b.c","password":"x"}`))
	assert.Equal(t, before+1, limited, "auth group is rate limited")

	before = limited
	do(e, http.MethodGet, "/v1/me", "tok", "")
	assert.Equal(t, before, limited, "authenticated routes are not")
}

func TestRoutes_Admin(t *testing.T) {
	e := newEcho(model.RoleAdmin, nil)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/v1/admin/accounts", "tok", ""))
	assert.Equal(t, http.StatusOK, do(e, http.MethodPatch, "/v1/admin/accounts/3/status", "tok", `{"status":"APPROVED"}`))
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/admin/accounts", "", ""))
}
