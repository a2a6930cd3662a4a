package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed identifiers or payloads.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent entity, or one not in the expected state.
	ErrNotFound = errors.New("not found")
	// ErrExternalService marks an unreachable reasoning engine or fetcher.
	ErrExternalService = errors.New("external service unavailable")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
