package domainerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Invalid("lines", "required", "at least one line"), ErrValidation},
		{"validation list", ValidationErrors{Invalid("a", "b", "c")}, ErrValidation},
		{"not found", NotFound("order_not_found"), ErrNotFound},
		{"conflict", Conflict("table_reserved"), ErrConflict},
		{"transition", IllegalTransitionError{Resource: "order", Current: "PAID", Requested: "READY"}, ErrIllegalTransition},
		{"concurrency", ConcurrencyConflictError{Resource: "order", ID: "1"}, ErrConcurrencyConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("wrapped: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
		})
	}
}

func TestNotFoundMatchesByCode(t *testing.T) {
	errOrder := NotFound("order_not_found")
	assert.ErrorIs(t, fmt.Errorf("x: %w", errOrder), errOrder)
	assert.False(t, errors.Is(errOrder, NotFound("table_not_found")))
}

func TestIllegalTransitionDetails(t *testing.T) {
	err := fmt.Errorf("svc: %w", IllegalTransitionError{Resource: "order", Current: "PAID", Requested: "READY"})

	var ite IllegalTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, "PAID", ite.Current)
	assert.Equal(t, "READY", ite.Requested)
}

func TestValidationErrorsErr(t *testing.T) {
	var errs ValidationErrors
	assert.NoError(t, errs.Err())

	errs = append(errs, Invalid("quantity", "out_of_range", "must be between 1 and 999"))
	assert.ErrorIs(t, errs.Err(), ErrValidation)
	assert.Equal(t, "quantity: must be between 1 and 999", errs.Error())
}
