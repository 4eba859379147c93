package middleware

// identity.go holds the context keys JWTAuth fills in and the helpers
// handlers and other middleware use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/model"
)

const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
	ctxRole     = "role"
)

// UserID returns the authenticated user id, if any.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated role or "" for anonymous requests.
func Role(c echo.Context) model.Role {
	r, _ := c.Get(ctxRole).(model.Role)
	return r
}

// Username returns the authenticated username or "".
func Username(c echo.Context) string {
	s, _ := c.Get(ctxUsername).(string)
	return s
}

// userKey is the user part of rate limit keys; "anon" when unauthenticated.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
