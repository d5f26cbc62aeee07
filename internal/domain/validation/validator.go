package validation

import (
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// MessageValidator validates client messages for JSON-RPC compliance.
type MessageValidator struct{}

// NewMessageValidator creates a new MessageValidator.
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// Validate returns nil for a well-formed request or notification for a served
// method, or a *ValidationError otherwise. hrgate never issues requests of its
// own, so client responses are rejected.
func (v *MessageValidator) Validate(msg *mcp.Message) error {
	if msg.Decoded == nil {
		return NewValidationError(ErrCodeParseError, "Parse error")
	}

	req, ok := msg.Decoded.(*jsonrpc.Request)
	if !ok {
		return NewValidationError(ErrCodeInvalidRequest, "Invalid Request")
	}
	if req.Method == "" {
		return NewValidationError(ErrCodeInvalidRequest, "Invalid Request")
	}
	if !IsServedMethod(req.Method) {
		return NewValidationError(ErrCodeMethodNotFound, "Method not found")
	}
	if req.Method == "tools/call" && !req.IsCall() {
		return NewValidationError(ErrCodeInvalidRequest, "tools/call requires an id")
	}
	return nil
}
