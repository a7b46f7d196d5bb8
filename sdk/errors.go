package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the SDK, usable with errors.Is().
//
//	err := client.GetFeature(ctx, "unknown_feature", nil)
//	if errors.Is(err, sdk.ErrNotFound) {
//	    // feature is not registered
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound is returned when a feature or entity is not found
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned for missing or unknown API keys
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRequest is returned for 4xx validation failures
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnavailable is returned when a backing dependency is down
	ErrUnavailable = errors.New("service unavailable")

	// ErrServerError is returned for other 5xx responses
	ErrServerError = errors.New("server error")

	// ErrTimeout is returned when a request times out
	ErrTimeout = errors.New("request timeout")
)

// APIError carries the structured error body returned by the API along
// with the HTTP status code.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
	RequestID  string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the package sentinels so callers can
// use errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusServiceUnavailable:
		return ErrUnavailable
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return ErrInvalidRequest
	case e.StatusCode >= 500:
		return ErrServerError
	}
	return nil
}

// parseAPIError builds an APIError from a non-2xx response body.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

// IsNotFound reports whether err indicates a missing feature or entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the operation that produced err may succeed
// on retry. Validation, auth, and not-found errors are permanent; network
// errors, timeouts, 429s and 5xx responses are transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return apiErr.StatusCode >= 500
	}

	// Anything that never reached the server is worth retrying.
	return !errors.Is(err, ErrInvalidConfig)
}
