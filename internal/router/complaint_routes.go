package router

import (
	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/authz"
)

// RegisterComplaints registers public intake and the staff review routes.
// Intake needs no account and is throttled per submitter fingerprint;
// reading needs complaints:read and resolving complaints:resolve.
func RegisterComplaints(e *echo.Echo, d Deps) {
	h := d.Complaints
	g := e.Group("/v1/complaints")

	g.POST("", h.Submit, optional(d.SubmitLimit)...)
	g.GET("", h.List, permitted(d, authz.ComplaintsRead)...)
	g.GET("/:id", h.Get, permitted(d, authz.ComplaintsRead)...)
	g.POST("/:id/resolve", h.Resolve, permitted(d, authz.ComplaintsResolve)...)
}
