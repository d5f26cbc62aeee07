// Package http provides the Streamable HTTP transport for hrgate.
//
// The transport exposes one JSON-RPC endpoint. Every POST body is a single
// JSON-RPC message that is passed to service.ServerService, the same message
// loop the stdio transport uses, so both transports share the interceptor
// chain and tool set.
//
// # Endpoints
//
//	POST /mcp     - Send a JSON-RPC message, receive the JSON-RPC reply
//	OPTIONS /mcp  - CORS preflight
//	GET /health   - Component health as JSON
//	GET /metrics  - Prometheus metrics
//
// hrgate never initiates messages, so GET and DELETE on the MCP endpoint
// answer 405 and no SSE stream is offered.
//
// # Request Headers
//
//	Authorization: Bearer <api-key>     - API key, verified against server.api_keys
//	X-API-Key: <api-key>                - Alternative to the Authorization header
//	X-Request-ID: <id>                  - Optional correlation ID, generated when absent
//	Content-Type: application/json      - Required when present
//
// # Middleware Chain
//
// Requests pass through middleware in this order:
//
//  1. MetricsMiddleware - Records duration and status
//  2. RequestIDMiddleware - Assigns the request ID and the per-request logger
//  3. RealIPMiddleware - Extracts the client address for rate limiting
//  4. DNSRebindingProtection - Validates the Origin header
//  5. APIKeyMiddleware - Authenticates the caller
//  6. Handler - Runs the message through ServerService
package http
