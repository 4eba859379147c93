package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/registry"
)

// Catalog lists the complaint types accepted by intake together with
// their detail fields.  Served behind the response cache.
func Catalog(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"types": registry.Catalog()})
}
