package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// SessionEnforcer is implemented by service.SessionGuard.
type SessionEnforcer interface {
	Enforce(ctx context.Context, userID uint64) (int64, error)
}

// EnforceSessions prunes the caller's excess sessions after each
// authenticated request.  It never changes the response; failures are
// only logged.
func EnforceSessions(guard SessionEnforcer, timeout time.Duration, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			uid, ok := UserID(c)
			if !ok {
				return err
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), timeout)
			defer cancel()
			if _, gerr := guard.Enforce(ctx, uid); gerr != nil {
				log.Warn("session guard failed", "op", "sessions.enforce", "user_id", uid, "err", gerr)
			}
			return err
		}
	}
}
