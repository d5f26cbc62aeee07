// Package dispatch contains the interceptor chain every inbound MCP message
// passes through, ending in the ToolRouter that answers it.
package dispatch

import (
	"context"

	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// MessageInterceptor inspects a client message and either forwards it to the
// next interceptor or answers it.
//
// Returning a message with Direction ServerToClient means "send this reply".
// Returning (nil, nil) means the message needs no reply (notifications).
// Returning an error rejects the message; the server turns it into a
// JSON-RPC error response.
type MessageInterceptor interface {
	Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error)
}

// InterceptorFunc adapts a function to MessageInterceptor.
type InterceptorFunc func(ctx context.Context, msg *mcp.Message) (*mcp.Message, error)

// Intercept calls f(ctx, msg).
func (f InterceptorFunc) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	return f(ctx, msg)
}
