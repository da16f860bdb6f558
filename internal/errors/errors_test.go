package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Chain(t *testing.T) {
	cause := fmt.Errorf("no rows")
	err := fmt.Errorf("lookup: %w", NotFound("model not found", cause).WithOperation("GetModel"))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeNotFound, appErr.Code)
	assert.Equal(t, "GetModel", appErr.Operation)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, appErr.Error(), "caused by: no rows")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		ErrCodeNotFound:        http.StatusNotFound,
		ErrCodeInvalidInput:    http.StatusBadRequest,
		ErrCodeValidationError: http.StatusBadRequest,
		ErrCodeConflict:        http.StatusConflict,
		ErrCodeUnscored:        http.StatusUnprocessableEntity,
		ErrCodeWeightImbalance: http.StatusUnprocessableEntity,
		ErrCodeUnavailable:     http.StatusServiceUnavailable,
		ErrCodeDatabaseError:   http.StatusInternalServerError,
		"UNAUTHORIZED":         http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(code), code)
	}
}
