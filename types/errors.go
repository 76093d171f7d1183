package types

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNoGroupableFields  = errors.New("no groupable fields")
	// ErrBusy is returned while another add-field mutation is in flight.
	ErrBusy = errors.New("another field is being added")
)

// ValidationError describes bad user input for a single field.
type ValidationError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("field '%s' failed on '%s'", e.Field, e.Tag)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ValidationErrors collects every problem found at a boundary.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ErrValidation.Error()
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

func (e ValidationErrors) Is(target error) bool { return target == ErrValidation }

func NewValidationError(field, tag, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Tag: tag, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string // table, field, report, form
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("field '%s' already in form", e.Field)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// BackendUnavailableError wraps a storage or transport failure.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s: backend unavailable: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

type NoGroupableFieldsError struct {
	Field string
	Type  FieldType
}

func (e *NoGroupableFieldsError) Error() string {
	if e.Field == "" {
		return "no fields available for grouping"
	}
	return fmt.Sprintf("field '%s' of type %s cannot be used for grouping", e.Field, e.Type)
}

func (e *NoGroupableFieldsError) Is(target error) bool { return target == ErrNoGroupableFields }
