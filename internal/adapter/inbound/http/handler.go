package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
	"github.com/Sentinel-Gate/hrgate/internal/domain/dispatch"
)

// MCPProtocolVersion is the MCP protocol version this handler supports.
const MCPProtocolVersion = dispatch.ProtocolVersion

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// MCPSessionIDHeader is the header for session identification.
const MCPSessionIDHeader = "Mcp-Session-Id"

// MCPProtocolVersionHeader is the header for protocol version.
const MCPProtocolVersionHeader = "MCP-Protocol-Version"

// MessageHandler processes one JSON-RPC message and returns the encoded
// reply, or nil when none is due. service.ServerService implements it.
type MessageHandler interface {
	Handle(ctx context.Context, raw []byte, caller *auth.Identity) []byte
}

// mcpHandler creates the HTTP handler for the MCP endpoint.
func mcpHandler(server MessageHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlePost(w, r, server)
		case http.MethodOptions:
			handleOptions(w, r)
		default:
			w.Header().Set("Allow", "POST, OPTIONS")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

// handlePost reads one JSON-RPC message, runs it through server and writes
// the reply.
func handlePost(w http.ResponseWriter, r *http.Request, server MessageHandler) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/json" {
		writeJSONRPCError(w, nil, -32700, "Parse error: content type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONRPCError(w, nil, -32700, "Parse error: request body too large (max 1MB)")
			return
		}
		writeJSONRPCError(w, nil, -32700, "Parse error: failed to read request body")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeJSONRPCError(w, nil, -32700, "Parse error: empty request body")
		return
	}
	if !json.Valid(body) {
		writeJSONRPCError(w, nil, -32700, "Parse error: invalid JSON")
		return
	}

	var envelope struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeJSONRPCError(w, nil, -32600, "Invalid Request: request must be a JSON object")
		return
	}

	ctx := r.Context()
	reply := server.Handle(ctx, body, IdentityFromContext(ctx))
	if ctx.Err() != nil {
		return
	}

	w.Header().Set(MCPProtocolVersionHeader, MCPProtocolVersion)
	if sessionID := r.Header.Get(MCPSessionIDHeader); sessionID != "" {
		w.Header().Set(MCPSessionIDHeader, sessionID)
	}

	// Notifications get 202 Accepted with no body.
	if envelope.ID == nil || reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if envelope.Method == "initialize" && r.Header.Get(MCPSessionIDHeader) == "" {
		w.Header().Set(MCPSessionIDHeader, uuid.NewString())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

// handleOptions handles CORS preflight requests.
func handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID, Mcp-Session-Id, MCP-Protocol-Version")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// writeJSONRPCError writes a JSON-RPC error response. JSON-RPC errors are
// sent with 200 OK.
func writeJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSONRPCErrorStatus(w, http.StatusOK, id, code, message)
}

func writeJSONRPCErrorStatus(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(dispatch.CreateJSONRPCError(id, code, message))
}

// healthHandler responds 200 OK when no HealthChecker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
}
