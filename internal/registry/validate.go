package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/qjdesk/complaint-desk/internal/model"
)

// Header holds the fields common to every complaint submission.
type Header struct {
	EmployeeNumber string   `json:"employee_number" validate:"required,employee"`
	Company        string   `json:"company" validate:"required,min=2,max=100"`
	Route          *string  `json:"route,omitempty" validate:"omitempty,max=60"`
	Neighborhood   *string  `json:"neighborhood,omitempty" validate:"omitempty,max=100"`
	Shift          *string  `json:"shift,omitempty" validate:"omitempty,oneof=morning afternoon night"`
	Latitude       *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	UnitNumber     *string  `json:"unit_number,omitempty" validate:"omitempty,unitno"`
}

// FieldErrors maps a JSON field path (detail fields are prefixed with
// "detail.") to a human readable message.
type FieldErrors map[string]string

var (
	hhmmPattern     = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	employeePattern = regexp.MustCompile(`^[0-9]{4,10}$`)
	unitPattern     = regexp.MustCompile(`^[A-Z0-9-]{1,12}$`)
	driverPattern   = regexp.MustCompile(`^[A-Z0-9-]{3,20}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "-" {
			return ""
		}
		return name
	})
	patterns := map[string]*regexp.Regexp{
		"hhmm":     hhmmPattern,
		"employee": employeePattern,
		"unitno":   unitPattern,
		"driverid": driverPattern,
	}
	for tag, re := range patterns {
		re := re
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		})
	}
	return v
}

var messages = map[string]string{
	"required": "is required",
	"min":      "must be at least %s characters long",
	"max":      "must be no longer than %s characters",
	"gte":      "must be greater than or equal to %s",
	"lte":      "must be less than or equal to %s",
	"oneof":    "must be one of: %s",
	"hhmm":     "must be a time of day in HH:MM format",
	"employee": "must be 4 to 10 digits",
	"unitno":   "must be 1 to 12 upper case letters, digits or dashes",
	"driverid": "must be 3 to 20 upper case letters, digits or dashes",
}

func message(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

func collect(into FieldErrors, prefix string, s any) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		into[strings.TrimSuffix(prefix, ".")] = "is invalid"
		return
	}
	for _, fe := range verrs {
		into[prefix+fe.Field()] = message(fe)
	}
}

// DecodeDetail builds the detail payload for v from raw JSON.  Decoding
// problems are reported as field errors, never as a failure of the whole
// request, so they aggregate with the rest.
func DecodeDetail(v model.Variant, raw json.RawMessage) (model.Detail, FieldErrors) {
	spec, ok := Lookup(v)
	if !ok {
		return nil, FieldErrors{"type": "is not a known complaint type"}
	}
	d := spec.New()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return d, nil
	}
	if err := json.Unmarshal(trimmed, d); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return d, FieldErrors{"detail." + typeErr.Field: "has the wrong type"}
		}
		return d, FieldErrors{"detail": "must be a JSON object"}
	}
	return d, nil
}

// Validate checks the header and the detail in one pass and returns every
// violation found.  A nil result means the submission is valid.
func Validate(h *Header, d model.Detail) FieldErrors {
	errs := FieldErrors{}
	collect(errs, "", h)
	if d != nil {
		collect(errs, "detail.", d)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Merge copies every entry of src into dst and returns dst.
func (dst FieldErrors) Merge(src FieldErrors) FieldErrors {
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
	return dst
}
