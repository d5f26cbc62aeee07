package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/tool"
	"github.com/Sentinel-Gate/hrgate/internal/domain/validation"
	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// ProtocolVersion is the MCP revision hrgate implements.
const ProtocolVersion = "2025-06-18"

// ServerInfo identifies the server in the initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolRegistry is the read side of tool.Registry.
type ToolRegistry interface {
	Lookup(name string) (tool.Tool, tool.Handler, bool)
	List() []tool.Tool
}

// ToolRouter is the last interceptor in the chain. It answers the lifecycle
// methods and tools/list itself and runs tools/call through the registered
// handler.
type ToolRouter struct {
	registry     ToolRegistry
	info         ServerInfo
	instructions string
	logger       *slog.Logger
}

// NewToolRouter creates a ToolRouter.
func NewToolRouter(registry ToolRegistry, info ServerInfo, instructions string, logger *slog.Logger) *ToolRouter {
	return &ToolRouter{
		registry:     registry,
		info:         info,
		instructions: instructions,
		logger:       logger,
	}
}

// Intercept answers msg. Notifications produce no reply.
func (r *ToolRouter) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if msg.Direction != mcp.ClientToServer {
		return msg, nil
	}
	req := msg.Request()
	if req == nil {
		return nil, validation.NewValidationError(validation.ErrCodeInvalidRequest, "Invalid Request")
	}
	if !req.IsCall() {
		r.logger.Debug("notification received", "method", req.Method)
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return r.handleInitialize(msg)
	case "ping":
		return r.buildResultResponse(msg, struct{}{})
	case "tools/list":
		return r.buildResultResponse(msg, toolsListResult{Tools: r.registry.List()})
	case "tools/call":
		return r.handleToolsCall(ctx, msg)
	default:
		return r.buildErrorResponse(msg, validation.ErrCodeMethodNotFound, "Method not found"), nil
	}
}

func (r *ToolRouter) handleInitialize(msg *mcp.Message) (*mcp.Message, error) {
	result := initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      r.info,
		Instructions:    r.instructions,
	}
	return r.buildResultResponse(msg, result)
}

func (r *ToolRouter) handleToolsCall(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	logger := ctxkey.Logger(ctx, r.logger)
	name := msg.ToolName()

	_, handler, ok := r.registry.Lookup(name)
	if !ok {
		logger.Warn("unknown tool requested", "tool", name)
		return r.buildErrorResponse(msg, validation.ErrCodeInvalidParams, fmt.Sprintf("Unknown tool: %s", name)), nil
	}

	args, err := json.Marshal(msg.ToolArguments())
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	start := time.Now()
	result, err := handler(ctx, args)
	if err != nil {
		var argErr *tool.ArgumentError
		if errors.As(err, &argErr) {
			logger.Info("invalid tool arguments", "tool", name, "error", argErr.Err)
			return r.buildErrorResponse(msg, validation.ErrCodeInvalidParams, argErr.Error()), nil
		}
		logger.Error("tool handler failed", "tool", name, "error", err)
		return r.buildErrorResponse(msg, validation.ErrCodeInternalError, "Internal error"), nil
	}

	logger.Debug("tool call handled",
		"tool", name,
		"is_error", result.IsError,
		"duration", time.Since(start),
	)
	return r.buildResultResponse(msg, result)
}

// buildErrorResponse constructs a JSON-RPC error response message.
func (r *ToolRouter) buildErrorResponse(msg *mcp.Message, code int, message string) *mcp.Message {
	return &mcp.Message{
		Raw:       CreateJSONRPCError(msg.RawID(), code, message),
		Direction: mcp.ServerToClient,
		Timestamp: time.Now(),
	}
}

// buildResultResponse constructs a JSON-RPC success response message.
func (r *ToolRouter) buildResultResponse(msg *mcp.Message, result any) (*mcp.Message, error) {
	return mcp.NewResult(msg.RawID(), result)
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

type toolsListResult struct {
	Tools []tool.Tool `json:"tools"`
}

// Compile-time check that ToolRouter implements MessageInterceptor.
var _ MessageInterceptor = (*ToolRouter)(nil)
