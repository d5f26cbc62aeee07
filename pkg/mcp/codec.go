package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
)

// DecodeMessage parses one JSON-RPC frame. The result is a *jsonrpc.Request
// or a *jsonrpc.Response.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}

// ReadRequest wraps a frame received from caller. The returned Message is
// never nil: on a decode error it keeps Raw with a nil Decoded so the
// validation interceptor can answer with the matching JSON-RPC error.
// Request params are parsed up front.
func ReadRequest(raw []byte, caller *auth.Identity) (*Message, error) {
	msg := &Message{
		Raw:       append([]byte(nil), raw...),
		Direction: ClientToServer,
		Timestamp: time.Now(),
		Caller:    caller,
	}
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return msg, err
	}
	msg.Decoded = decoded
	msg.ParseParams()
	return msg, nil
}

type resultFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// NewResult builds the success reply to the request with the given raw id.
func NewResult(id json.RawMessage, result any) (*Message, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	raw, err := json.Marshal(resultFrame{JSONRPC: "2.0", ID: id, Result: body})
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	return &Message{
		Raw:       raw,
		Direction: ServerToClient,
		Timestamp: time.Now(),
	}, nil
}
