package validation

import (
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

func mustID(t *testing.T, v any) jsonrpc.ID {
	t.Helper()
	id, err := jsonrpc.MakeID(v)
	if err != nil {
		t.Fatalf("MakeID(%v) error = %v", v, err)
	}
	return id
}

func TestMessageValidator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		decoded  jsonrpc.Message
		wantCode int
	}{
		{"tools/list call", &jsonrpc.Request{ID: mustID(t, float64(1)), Method: "tools/list"}, 0},
		{"tools/call call", &jsonrpc.Request{ID: mustID(t, "a"), Method: "tools/call", Params: json.RawMessage(`{"name":"get_user_data"}`)}, 0},
		{"initialized notification", &jsonrpc.Request{Method: "notifications/initialized"}, 0},
		{"ping", &jsonrpc.Request{ID: mustID(t, float64(2)), Method: "ping"}, 0},
		{"nil decoded", nil, ErrCodeParseError},
		{"client response", &jsonrpc.Response{ID: mustID(t, float64(1)), Result: json.RawMessage(`{}`)}, ErrCodeInvalidRequest},
		{"empty method", &jsonrpc.Request{ID: mustID(t, float64(1))}, ErrCodeInvalidRequest},
		{"resources not served", &jsonrpc.Request{ID: mustID(t, float64(1)), Method: "resources/list"}, ErrCodeMethodNotFound},
		{"case sensitive", &jsonrpc.Request{ID: mustID(t, float64(1)), Method: "Tools/List"}, ErrCodeMethodNotFound},
		{"tools/call notification", &jsonrpc.Request{Method: "tools/call"}, ErrCodeInvalidRequest},
	}

	v := NewMessageValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&mcp.Message{Decoded: tt.decoded})
			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			valErr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v (%T), want *ValidationError", err, err)
			}
			if valErr.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", valErr.Code, tt.wantCode)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError(ErrCodeInvalidParams, "bad")
	if err.Error() != "validation error -32602: bad" {
		t.Errorf("Error() = %q", err.Error())
	}
}
