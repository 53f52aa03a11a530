package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evalauth/internal/handler"
	"github.com/iliyamo/evalauth/internal/middleware"
	"github.com/iliyamo/evalauth/internal/model"
)

// Deps carries everything the routes need.
type Deps struct {
	Auth       *handler.AuthHandler
	Admin      *handler.AdminHandler
	Authorizer middleware.TokenAuthorizer
	RateLimit  echo.MiddlewareFunc // nil disables limiting
	Health     []handler.HealthCheck
}

// RegisterRoutes mounts the health check and the /v1 API on e.
//
//	/v1/auth/*   unauthenticated flows, rate limited
//	/v1/*        require a valid access token
//	/v1/admin/*  additionally require the ADMIN role
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Health...))

	g := e.Group("/v1/auth")
	if d.RateLimit != nil {
		g.Use(d.RateLimit)
	}
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/forgot-password", d.Auth.ForgotPassword)
	g.POST("/reset-password", d.Auth.ResetPassword)
	g.GET("/verify-email", d.Auth.VerifyEmail)
	g.POST("/logout", d.Auth.Logout, middleware.Authorize(d.Authorizer))

	auth := e.Group("/v1", middleware.Authorize(d.Authorizer))
	auth.GET("/me", d.Auth.Me)

	admin := auth.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	admin.GET("/accounts", d.Admin.ListAccounts)
	admin.PATCH("/accounts/:id/status", d.Admin.UpdateStatus)
}
