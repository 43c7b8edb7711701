// Package domainerr holds the error taxonomy shared by the order, table and
// closing packages. Typed errors match their sentinel through errors.Is and
// expose details through errors.As.
package domainerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation_failed")
	ErrNotFound            = errors.New("not_found")
	ErrIllegalTransition   = errors.New("illegal_transition")
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	ErrConflict            = errors.New("conflict")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, code, message string) ValidationError {
	return ValidationError{Field: field, Code: code, Message: message}
}

// ValidationErrors aggregates every problem found in one request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e))
	for _, item := range e {
		parts = append(parts, item.Error())
	}
	return strings.Join(parts, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Err returns nil when nothing was collected.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// NotFoundError is a missing top-level resource.
type NotFoundError struct {
	Code string
}

func NotFound(code string) NotFoundError {
	return NotFoundError{Code: code}
}

func (e NotFoundError) Error() string { return e.Code }

func (e NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	other, ok := target.(NotFoundError)
	return ok && other.Code == e.Code
}

// ConflictError is a business-rule conflict that needs manual resolution,
// such as seating on a reserved table.
type ConflictError struct {
	Code string
}

func Conflict(code string) ConflictError {
	return ConflictError{Code: code}
}

func (e ConflictError) Error() string { return e.Code }

func (e ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	other, ok := target.(ConflictError)
	return ok && other.Code == e.Code
}

// IllegalTransitionError carries the current state so callers can resync.
type IllegalTransitionError struct {
	Resource  string
	Current   string
	Requested string
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: illegal transition from %s to %s", e.Resource, e.Current, e.Requested)
}

func (e IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ConcurrencyConflictError reports a lost optimistic-concurrency race.
type ConcurrencyConflictError struct {
	Resource string
	ID       string
}

func (e ConcurrencyConflictError) Error() string {
	if e.ID == "" {
		return e.Resource + ": concurrent modification"
	}
	return fmt.Sprintf("%s %s: concurrent modification", e.Resource, e.ID)
}

func (e ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}
