package router

import (
	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/authz"
)

// RegisterAdmin registers user access management.  All routes require
// users:manage.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin")
	g.PATCH("/users/:id", d.Admin.UpdateUser, permitted(d, authz.UsersManage)...)
}
