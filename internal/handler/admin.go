package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/service"
)

// AccessAdmin is implemented by service.AdminService.
type AccessAdmin interface {
	UpdateAccess(ctx context.Context, actorID, targetID uint64, change service.AccessChange) (model.User, error)
}

// AdminHandler exposes user access management to admins.
type AdminHandler struct {
	responder
	admin AccessAdmin
}

func NewAdminHandler(admin AccessAdmin, o Options) *AdminHandler {
	return &AdminHandler{responder: newResponder(o), admin: admin}
}

type accessReq struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// UpdateUser: PATCH /v1/admin/users/:id with {"role"?, "is_active"?}.
// Deactivating a user or changing their role revokes their sessions.
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	target, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	actor, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req accessReq
	if err := c.Bind(&req); err != nil {
		return h.fail(c, bindError(err))
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	u, err := h.admin.UpdateAccess(ctx, actor, target, service.AccessChange{Role: req.Role, Active: req.IsActive})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(u)})
}
