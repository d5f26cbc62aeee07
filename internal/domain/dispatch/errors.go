package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/domain/validation"
)

// Errors returned by the interceptor chain.
var (
	ErrPolicyDenied  = errors.New("policy denied")
	ErrMissingCaller = errors.New("missing caller identity")
	ErrRateLimited   = errors.New("rate limited")
)

// Application-defined JSON-RPC error codes.
const (
	ErrCodePolicyDenied = -32001
	ErrCodeRateLimited  = -32002
	ErrCodeUnauthorized = -32003
)

// PolicyDenyError carries the rule that denied a tool call.
type PolicyDenyError struct {
	RuleName string
	Reason   string
}

func (e *PolicyDenyError) Error() string {
	return fmt.Sprintf("policy denied: %s", e.Reason)
}

// Unwrap returns ErrPolicyDenied so errors.Is(err, ErrPolicyDenied) works.
func (e *PolicyDenyError) Unwrap() error {
	return ErrPolicyDenied
}

// RateLimitError is returned when a caller exceeded its tool-call rate.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
}

// Unwrap returns ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// SafeErrorMessage returns a client-safe message for err. Internal details
// are logged by the caller, never sent to the client.
func SafeErrorMessage(err error) string {
	var valErr *validation.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Message
	}
	var denyErr *PolicyDenyError
	if errors.As(err, &denyErr) && denyErr.RuleName != "" {
		return fmt.Sprintf("Access denied by policy rule %q", denyErr.RuleName)
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded"
	case errors.Is(err, ErrPolicyDenied):
		return "Access denied by policy"
	case errors.Is(err, ErrMissingCaller):
		return "Authentication required"
	default:
		return "Internal error"
	}
}

// ErrorCode maps err to its JSON-RPC error code.
func ErrorCode(err error) int {
	var valErr *validation.ValidationError
	switch {
	case errors.As(err, &valErr):
		return valErr.Code
	case errors.Is(err, ErrPolicyDenied):
		return ErrCodePolicyDenied
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimited
	case errors.Is(err, ErrMissingCaller):
		return ErrCodeUnauthorized
	default:
		return validation.ErrCodeInternalError
	}
}

// CreateJSONRPCError creates a JSON-RPC 2.0 error response. id is the raw
// request ID, or nil when the request could not be parsed.
func CreateJSONRPCError(id json.RawMessage, code int, message string) []byte {
	if id == nil {
		id = json.RawMessage("null")
	}
	b, _ := json.Marshal(jsonRPCError{
		JSONRPC: "2.0",
		ID:      id,
		Error:   jsonRPCErrorDetail{Code: code, Message: message},
	})
	return b
}

type jsonRPCError struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      json.RawMessage    `json:"id"`
	Error   jsonRPCErrorDetail `json:"error"`
}

type jsonRPCErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
