// Package ctxkey defines context key types shared by the transports and the
// dispatch chain. It must not import other internal packages.
package ctxkey

// LoggerKey stores the per-request *slog.Logger carrying request_id.
type LoggerKey struct{}

// RequestIDKey stores the request ID string assigned by the HTTP middleware.
type RequestIDKey struct{}

// TransportKey stores the transport name ("stdio" or "http").
type TransportKey struct{}

// RemoteAddrKey stores the client address of an HTTP request.
type RemoteAddrKey struct{}
