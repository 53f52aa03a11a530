package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evalauth/internal/model"
)

// Approvals is the administrative account API.
type Approvals interface {
	ListAccounts(ctx context.Context, f model.AccountFilter) ([]model.PublicAccount, error)
	UpdateStatus(ctx context.Context, id uint64, to model.Status) (model.PublicAccount, error)
}

type AdminHandler struct {
	admin Approvals
}

func NewAdminHandler(a Approvals) *AdminHandler { return &AdminHandler{admin: a} }

type statusReq struct {
	Status string `json:"status"`
}

// ListAccounts handles GET /v1/admin/accounts?role=&status=&limit=&offset=.
func (h *AdminHandler) ListAccounts(c echo.Context) error {
	var f model.AccountFilter
	if v := c.QueryParam("role"); v != "" {
		r, ok := model.ParseRole(v)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
		}
		f.Role = r
	}
	if v := c.QueryParam("status"); v != "" {
		s, ok := model.ParseStatus(v)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}
		f.Status = s
	}
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	f.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	accounts, err := h.admin.ListAccounts(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts": accounts})
}

// UpdateStatus handles PATCH /v1/admin/accounts/:id/status.
func (h *AdminHandler) UpdateStatus(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	to, ok := model.ParseStatus(req.Status)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}
	acc, err := h.admin.UpdateStatus(c.Request().Context(), id, to)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, acc)
}
