package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeValidation, "test message")

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "test message", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Empty(t, err.Details)
	assert.Nil(t, err.Cause)
}

func TestErrorString(t *testing.T) {
	err := New(ErrorTypeValidation, "test message")
	assert.Equal(t, "validation: test message", err.Error())

	withDetails := New(ErrorTypeValidation, "test message").WithDetails("extra info")
	assert.Equal(t, "validation: test message (extra info)", withDetails.Error())
}

func TestWrap(t *testing.T) {
	original := errors.New("original error")
	wrapped := Wrap(original, ErrorTypeStore, "operation failed")

	assert.Equal(t, ErrorTypeStore, wrapped.Type)
	assert.Equal(t, original, wrapped.Cause)
	assert.Equal(t, original, wrapped.Unwrap())
	assert.True(t, errors.Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	original := errors.New("connection refused")
	wrapped := Wrapf(original, ErrorTypeTransient, "failed to connect to %s:%d", "localhost", 5432)

	assert.Equal(t, "failed to connect to localhost:5432", wrapped.Message)
	assert.Equal(t, original, wrapped.Cause)
}

func TestWithDetailsMutatesInPlace(t *testing.T) {
	err := New(ErrorTypeConfig, "bad config")
	detailed := err.WithDetailsf("field %s, value %d", "cost_cap_usd", -1)

	assert.Same(t, err, detailed)
	assert.Equal(t, "field cost_cap_usd, value -1", err.Details)
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		errType ErrorType
		status  int
	}{
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeTransient, http.StatusServiceUnavailable},
		{ErrorTypeJudgeParse, http.StatusUnprocessableEntity},
		{ErrorTypeBudget, http.StatusTooManyRequests},
		{ErrorTypeStore, http.StatusInternalServerError},
		{ErrorTypeConfig, http.StatusInternalServerError},
		{ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		err := New(tc.errType, "msg")
		assert.Equal(t, tc.status, err.StatusCode, tc.errType)
	}
}

func TestIsType(t *testing.T) {
	err := NewBudgetExhausted("MAX_ITERATIONS_REACHED")
	assert.True(t, IsType(err, ErrorTypeBudget))
	assert.False(t, IsType(err, ErrorTypeStore))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeBudget))
}
