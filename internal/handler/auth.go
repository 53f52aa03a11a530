package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evalauth/internal/middleware"
	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/service"
)

// Credentials is the credential flow the auth endpoints call.
type Credentials interface {
	Register(ctx context.Context, in service.Registration) (model.PublicAccount, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	Logout(ctx context.Context, accountID uint64, rawAccess string) error
	Profile(ctx context.Context, id uint64) (model.PublicAccount, error)
}

// Refresher rotates refresh tokens.
type Refresher interface {
	Refresh(ctx context.Context, raw string) (model.TokenPair, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	creds   Credentials
	refresh Refresher
}

func NewAuthHandler(creds Credentials, refresh Refresher) *AuthHandler {
	return &AuthHandler{creds: creds, refresh: refresh}
}

// forgotPasswordMessage is returned whether or not the address exists.
const forgotPasswordMessage = "if the address is registered, a reset link has been sent"

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // CONSULTANT | CRAFTSMAN
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Register creates a pending account and sends the verification email.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	acc, err := h.creds.Register(c.Request().Context(), service.Registration{
		Name: req.Name, Email: req.Email, Password: req.Password, Role: req.Role,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"account": acc,
		"message": "registered; check your email to verify the address",
	})
}

// Login verifies credentials and returns a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	session, err := h.creds.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// Refresh exchanges a refresh token for a new pair.  The presented token
// stops working.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	pair, err := h.refresh.Refresh(c.Request().Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// ForgotPassword answers 202 with the same body whether or not the address
// is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	err := h.creds.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": forgotPasswordMessage})
}

// ResetPassword redeems a reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	if err := h.creds.ResetPassword(c.Request().Context(), strings.TrimSpace(req.Token), req.Password); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// VerifyEmail redeems the token from the verification link.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	token := strings.TrimSpace(c.QueryParam("token"))
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	if err := h.creds.VerifyEmail(c.Request().Context(), token); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email verified; awaiting approval"})
}

// Logout revokes the bearer token of the request and ends its session.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.creds.Logout(c.Request().Context(), id, middleware.AccessToken(c)); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	acc, err := h.creds.Profile(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, acc)
}
