// Package router defines how HTTP routes are registered for the API.
package router

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/authz"
	"github.com/qjdesk/complaint-desk/internal/handler"
	"github.com/qjdesk/complaint-desk/internal/middleware"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

// Deps are the handlers and middleware the routes are assembled from.
// LoginLimit, SubmitLimit and CatalogCache may be nil.
type Deps struct {
	Auth         *handler.AuthHandler
	Complaints   *handler.ComplaintHandler
	Admin        *handler.AdminHandler
	Health       echo.HandlerFunc
	Tokens       *utils.TokenIssuer
	Sessions     middleware.SessionEnforcer
	SessionWait  time.Duration
	LoginLimit   echo.MiddlewareFunc
	SubmitLimit  echo.MiddlewareFunc
	CatalogCache echo.MiddlewareFunc
	Log          *slog.Logger
}

// Register mounts every route on e.  Middleware is attached per route so
// that groups sharing the /v1 prefix never leak middleware into each
// other's 404 handling.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterComplaints(e, d)
	RegisterAdmin(e, d)
}

// RegisterRoutes registers routes that need no authentication: the health
// check and the complaint-type catalog.
func RegisterRoutes(e *echo.Echo, d Deps) {
	health := d.Health
	if health == nil {
		health = handler.Health(nil)
	}
	e.GET("/healthz", health)
	e.GET("/v1/complaint-types", handler.Catalog, optional(d.CatalogCache)...)
}

// RegisterAuth registers the login/refresh exchange under /v1/auth and the
// caller-scoped endpoints that need an access token.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth")
	g.POST("/login", d.Auth.Login, optional(d.LoginLimit)...)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout, authenticated(d)...)

	e.GET("/v1/me", d.Auth.Me, authenticated(d)...)
}

// authenticated is the chain shared by every protected route: verify the
// access token, then prune the caller's sessions once the handler ran.
func authenticated(d Deps, extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	chain := []echo.MiddlewareFunc{middleware.JWTAuth(d.Tokens, logger(d))}
	if d.Sessions != nil {
		chain = append(chain, middleware.EnforceSessions(d.Sessions, d.SessionWait, logger(d)))
	}
	return append(chain, extra...)
}

func permitted(d Deps, c authz.Capability) []echo.MiddlewareFunc {
	return authenticated(d, middleware.RequirePermission(c, logger(d)))
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}

func logger(d Deps) *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}
