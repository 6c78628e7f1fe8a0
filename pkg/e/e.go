package e

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
)

func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// InvalidArgument wraps ErrInvalidArgument with a human readable reason.
func InvalidArgument(op, reason string) error {
	return fmt.Errorf("%s: %s: %w", op, reason, ErrInvalidArgument)
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries one entry per violated field.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Is(target error) bool { return target == ErrValidation }

func (v *ValidationError) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field was recorded.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

// WrapMongo maps driver failures onto the taxonomy. Connectivity problems and
// deadlines become ErrStorageUnavailable so callers can tell "no results"
// from "system down".
func WrapMongo(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mongo.ErrClientDisconnected),
		mongo.IsTimeout(err),
		mongo.IsNetworkError(err):
		return fmt.Errorf("%s: %v: %w", op, err, ErrStorageUnavailable)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, context.Canceled)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %v: %w", op, ctx.Err(), ErrStorageUnavailable)
	}
	if strings.Contains(err.Error(), "server selection") {
		return fmt.Errorf("%s: %v: %w", op, err, ErrStorageUnavailable)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrInternal)
}
