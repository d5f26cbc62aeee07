// Package mcp provides MCP message types and JSON-RPC codec utilities
// for the hrgate server.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates the flow direction of a message through the server.
type Direction int

const (
	// ClientToServer indicates a message flowing from the client into hrgate.
	ClientToServer Direction = iota
	// ServerToClient indicates a reply produced by hrgate for the client.
	ServerToClient
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with transport metadata.
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Direction is flipped to ServerToClient by the interceptor that
	// produced a reply.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message.
	// The concrete type is either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received.
	Timestamp time.Time

	// Caller is the authenticated identity behind the message. Stdio
	// sessions carry the local identity; HTTP requests carry the identity
	// bound to the presented API key.
	Caller *auth.Identity

	// ParsedParams caches the request params decoded by ParseParams.
	ParsedParams map[string]interface{}
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	return m.Request() != nil
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	return m.Response() != nil
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	req := m.Request()
	if req == nil {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request if this is a request message.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response if this is a response message.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params and stores in ParsedParams.
// Safe to call multiple times (no-op if already parsed).
// Returns the parsed params or nil if not a request or parsing fails.
func (m *Message) ParseParams() map[string]interface{} {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}

	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}

	m.ParsedParams = params
	return params
}

// ToolName returns params.name of a tools/call request.
func (m *Message) ToolName() string {
	if !m.IsToolCall() {
		return ""
	}
	name, _ := m.ParseParams()["name"].(string)
	return name
}

// ToolArguments returns params.arguments of a tools/call request, or an
// empty map when absent.
func (m *Message) ToolArguments() map[string]interface{} {
	if !m.IsToolCall() {
		return nil
	}
	args, ok := m.ParseParams()["arguments"].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// CallerID returns the caller's identity ID, or "" when unauthenticated.
func (m *Message) CallerID() string {
	if m.Caller == nil {
		return ""
	}
	return m.Caller.ID
}

// RawID extracts the request ID from the raw message bytes as json.RawMessage.
// The SDK's jsonrpc.ID type doesn't marshal correctly through interface{},
// so the ID is read directly from the raw JSON.
// Returns nil if no ID is found.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}

	return raw["id"]
}
