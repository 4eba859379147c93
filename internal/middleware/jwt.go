package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

// Messages returned on 401.  An expired token gets its own message so
// clients know to refresh instead of logging in again.
const (
	MsgAuthRequired = "authentication required"
	MsgTokenExpired = "access token expired"
	MsgTokenInvalid = "invalid access token"
)

// JWTAuth validates the Bearer access token and stores the caller's id,
// username and role on the context (see UserID, Username, Role).
// Verification is signature and expiry only; no storage is touched.
func JWTAuth(tokens *utils.TokenIssuer, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				authDenied(c, log, "missing_token")
				return deny(c, apperr.Unauthenticated(MsgAuthRequired))
			}
			claims, err := tokens.VerifyAccess(raw)
			if errors.Is(err, utils.ErrTokenExpired) {
				authDenied(c, log, "expired_token")
				return deny(c, apperr.Unauthenticated(MsgTokenExpired))
			}
			if err != nil {
				authDenied(c, log, "invalid_token")
				return deny(c, apperr.Unauthenticated(MsgTokenInvalid))
			}

			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxUsername, claims.Username)
			c.Set(ctxRole, model.Role(claims.Role))
			return next(c)
		}
	}
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}

func authDenied(c echo.Context, log *slog.Logger, reason string) {
	log.Info("authentication denied",
		"event", "authn.denied",
		"reason", reason,
		"method", c.Request().Method,
		"path", c.Path(),
		"ip", c.RealIP(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)
}
