package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/middleware"
)

// responder turns service errors into JSON responses and bounds the
// work of each request.  It is embedded in every handler so the Kind to
// status mapping lives in one place.
type responder struct {
	dev     bool
	timeout time.Duration
	log     *slog.Logger
}

// Options are shared by all handlers.  Dev exposes internal error detail
// to clients; Timeout bounds each request's storage work.
type Options struct {
	Dev     bool
	Timeout time.Duration
	Log     *slog.Logger
}

func newResponder(o Options) responder {
	r := responder{dev: o.Dev, timeout: o.Timeout, log: o.Log}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Second
	}
	return r
}

func (r responder) reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), r.timeout)
}

// fail writes err.  Validation errors carry their field map; internal
// errors are logged with the failing operation and only described to the
// client in development.
func (r responder) fail(c echo.Context, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal("handler", err)
	}
	status := ae.Kind.HTTPStatus()
	switch ae.Kind {
	case apperr.KindValidation:
		if len(ae.Fields) > 0 {
			return c.JSON(status, echo.Map{"error": ae.Msg, "fields": ae.Fields})
		}
	case apperr.KindInternal:
		r.log.Error("request failed",
			"op", ae.Op,
			"err", ae.Err,
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		if r.dev {
			return c.JSON(status, echo.Map{"error": ae.Error()})
		}
	}
	return c.JSON(status, echo.Map{"error": ae.Msg})
}

// getUserID returns the authenticated caller's id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, apperr.Unauthenticated(middleware.MsgAuthRequired)
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation(map[string]string{name: "must be a positive integer"})
	}
	return id, nil
}

func invalidBody() error { return apperr.BadRequest("invalid body") }

// bindError reports a JSON value of the wrong type against its field so
// clients get the same fields map as for validation failures.  Anything
// else is an unreadable body.
func bindError(err error) error {
	var ute *json.UnmarshalTypeError
	if !errors.As(err, &ute) || ute.Field == "" {
		return invalidBody()
	}
	return apperr.Validation(map[string]string{ute.Field: expectedType(ute.Type)})
}

func expectedType(t reflect.Type) string {
	if t == nil {
		return "has the wrong type"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "must be a string"
	case reflect.Bool:
		return "must be a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "must be an integer"
	case reflect.Float32, reflect.Float64:
		return "must be a number"
	}
	return "has the wrong type"
}

