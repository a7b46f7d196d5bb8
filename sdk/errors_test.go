package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorUnwrapsToSentinels(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusGatewayTimeout, ErrTimeout},
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusUnprocessableEntity, ErrInvalidRequest},
		{http.StatusInternalServerError, ErrServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &APIError{StatusCode: tt.status, Message: "x"}
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestParseAPIError(t *testing.T) {
	body := []byte(`{"error":"feature not found","code":"NOT_FOUND"}`)
	err := parseAPIError(http.StatusNotFound, body)

	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Equal(t, "feature not found", err.Message)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestParseAPIErrorMalformedBody(t *testing.T) {
	err := parseAPIError(http.StatusBadGateway, []byte("<html>upstream broke</html>"))

	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), err.Message)
}

func TestIsNotFoundThroughWrapping(t *testing.T) {
	inner := &APIError{StatusCode: http.StatusNotFound, Message: "gone"}
	wrapped := fmt.Errorf("lookup failed: %w", inner)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(errors.New("other")))

	var apiErr *APIError
	require.ErrorAs(t, wrapped, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
