package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestID tags every request with a UUID in X-Request-ID unless the
// client already sent one.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	})
}

// RequestLogger writes one structured record per request.  Bodies and
// Authorization headers are never logged.
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURIPath:   true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency_ms", v.Latency.Round(time.Microsecond).Seconds() * 1000,
				"ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if id, ok := UserID(c); ok {
				attrs = append(attrs, "user_id", id)
			}
			switch {
			case v.Status >= 500:
				log.Error("request", append(attrs, "err", v.Error)...)
			case v.Status >= 400:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
			return nil
		},
	})
}
