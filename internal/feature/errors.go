package feature

import "fmt"

// ValidationError reports a malformed request or registration. It is never
// retried server-side and maps to HTTP 400 at the API edge.
type ValidationError struct {
	Msg string
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Msg
}
