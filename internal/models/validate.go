package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"safezone-api-server/pkg/e"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	validate.RegisterValidation("safezone_type", func(fl validator.FieldLevel) bool {
		v := SafeZoneType(fl.Field().String())
		for _, t := range SafeZoneTypes {
			if v == t {
				return true
			}
		}
		return false
	})
	validate.RegisterValidation("safezone_status", func(fl validator.FieldLevel) bool {
		v := SafeZoneStatus(fl.Field().String())
		for _, s := range SafeZoneStatuses {
			if v == s {
				return true
			}
		}
		return false
	})
	validate.RegisterValidation("lnglat", func(fl validator.FieldLevel) bool {
		coords, ok := fl.Field().Interface().([]float64)
		if !ok || len(coords) != 2 {
			return false
		}
		lng, lat := coords[0], coords[1]
		return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
	})
}

// Validate checks z against the record constraints and returns a
// *e.ValidationError listing every violated field.
func (z *SafeZone) Validate() error {
	z.Name = strings.TrimSpace(z.Name)

	err := validate.Struct(z)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("models.SafeZone.Validate: %w", err)
	}

	out := &e.ValidationError{}
	for _, fe := range verrs {
		out.Add(fieldPath(fe.Namespace()), message(fe))
	}
	return out.OrNil()
}

// fieldPath drops the root struct name: "SafeZone.capacity.max" -> "capacity.max".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "safezone_type":
		return "must be one of " + joinTypes()
	case "safezone_status":
		return "must be one of " + joinStatuses()
	case "lnglat":
		return "must be [longitude, latitude] within WGS84 range"
	}
	return "is invalid"
}

func joinTypes() string {
	parts := make([]string, len(SafeZoneTypes))
	for i, t := range SafeZoneTypes {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func joinStatuses() string {
	parts := make([]string, len(SafeZoneStatuses))
	for i, s := range SafeZoneStatuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
