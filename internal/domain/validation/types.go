// Package validation checks inbound JSON-RPC messages before they reach the
// tool router and rejects malformed ones with the matching JSON-RPC code.
package validation

import "fmt"

// JSON-RPC 2.0 error codes (https://www.jsonrpc.org/specification#error_object).
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ValidationError represents a validation failure with a JSON-RPC error code.
// Message is sent to the client verbatim and must not carry internal details.
type ValidationError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error %d: %s", e.Code, e.Message)
}

// NewValidationError creates a new ValidationError with the given code and message.
func NewValidationError(code int, message string) *ValidationError {
	return &ValidationError{
		Code:    code,
		Message: message,
	}
}
