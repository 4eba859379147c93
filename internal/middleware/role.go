package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/authz"
)

const MsgForbidden = "insufficient permissions"

// RequirePermission allows the request only when the caller's role holds
// capability c.  It must run after JWTAuth; a request without identity
// is answered 401 before any role check.  Role membership rules ("admin
// or supervisor") are expressed as capabilities in the authz table.
func RequirePermission(c authz.Capability, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			uid, ok := UserID(ec)
			if !ok {
				authDenied(ec, log, "no_identity")
				return deny(ec, apperr.Unauthenticated(MsgAuthRequired))
			}
			role := Role(ec)
			if !authz.Allowed(role, c) {
				log.Warn("authorization denied",
					"event", "authz.denied",
					"user_id", uid,
					"role", role,
					"capability", c,
					"method", ec.Request().Method,
					"path", ec.Path(),
					"request_id", ec.Response().Header().Get(echo.HeaderXRequestID),
				)
				return deny(ec, apperr.Forbidden(MsgForbidden))
			}
			return next(ec)
		}
	}
}

// deny answers with the status of err's kind and its client message, the
// same body shape handlers produce for service errors.
func deny(c echo.Context, err *apperr.Error) error {
	return c.JSON(err.Kind.HTTPStatus(), echo.Map{"error": err.Msg})
}
