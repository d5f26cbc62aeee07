package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/validation"
	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// ValidationInterceptor rejects malformed JSON-RPC messages and sanitizes
// tool-call arguments. It must be first in the chain.
type ValidationInterceptor struct {
	next      MessageInterceptor
	validator *validation.MessageValidator
	sanitizer *validation.Sanitizer
	logger    *slog.Logger
}

// NewValidationInterceptor creates a new ValidationInterceptor.
func NewValidationInterceptor(next MessageInterceptor, logger *slog.Logger) *ValidationInterceptor {
	return &ValidationInterceptor{
		next:      next,
		validator: validation.NewMessageValidator(),
		sanitizer: validation.NewSanitizer(),
		logger:    logger,
	}
}

// Intercept validates msg and, for tool calls, rewrites params with the
// sanitized arguments before passing it on.
func (v *ValidationInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if msg.Direction != mcp.ClientToServer {
		return v.next.Intercept(ctx, msg)
	}
	logger := ctxkey.Logger(ctx, v.logger)

	if err := v.validator.Validate(msg); err != nil {
		logger.Warn("invalid JSON-RPC message", "error", err)
		var valErr *validation.ValidationError
		if errors.As(err, &valErr) {
			return nil, valErr
		}
		return nil, validation.NewValidationError(validation.ErrCodeInvalidRequest, "Invalid Request")
	}

	if msg.IsToolCall() {
		if err := v.sanitizeToolCall(msg); err != nil {
			logger.Warn("tool call sanitization failed", "error", err)
			return nil, err
		}
	}

	return v.next.Intercept(ctx, msg)
}

func (v *ValidationInterceptor) sanitizeToolCall(msg *mcp.Message) error {
	req := msg.Request()
	if req.Params == nil {
		return validation.NewValidationError(validation.ErrCodeInvalidParams, "Missing params")
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil || params == nil {
		return validation.NewValidationError(validation.ErrCodeInvalidParams, "Invalid params")
	}

	sanitized, err := v.sanitizer.SanitizeToolCall(params)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return validation.NewValidationError(validation.ErrCodeInternalError, "Request processing error")
	}
	req.Params = encoded
	msg.ParsedParams = sanitized
	return nil
}

// Compile-time check that ValidationInterceptor implements MessageInterceptor.
var _ MessageInterceptor = (*ValidationInterceptor)(nil)
