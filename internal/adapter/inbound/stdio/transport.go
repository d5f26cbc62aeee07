// Package stdio serves MCP over stdin/stdout as newline-delimited JSON-RPC.
package stdio

import (
	"context"
	"io"
	"os"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
)

// TransportName is stored under ctxkey.TransportKey for stdio sessions.
const TransportName = "stdio"

// Runner serves a message stream until the input ends or ctx is cancelled.
// service.ServerService implements it.
type Runner interface {
	Run(ctx context.Context, in io.Reader, out io.Writer, caller *auth.Identity) error
}

// StdioTransport connects a Runner to the process's standard streams.
type StdioTransport struct {
	server Runner
	in     io.Reader
	out    io.Writer
}

// NewStdioTransport creates a stdio transport reading os.Stdin and writing
// os.Stdout.
func NewStdioTransport(server Runner) *StdioTransport {
	return NewStreamTransport(server, os.Stdin, os.Stdout)
}

// NewStreamTransport creates a transport over arbitrary streams.
func NewStreamTransport(server Runner, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{server: server, in: in, out: out}
}

// Start serves until stdin closes or ctx is cancelled. The caller is the
// local identity, and every stdio request shares the "local" rate-limit
// bucket.
func (t *StdioTransport) Start(ctx context.Context) error {
	ctx = context.WithValue(ctx, ctxkey.TransportKey{}, TransportName)
	ctx = context.WithValue(ctx, ctxkey.RemoteAddrKey{}, "local")
	return t.server.Run(ctx, t.in, t.out, auth.LocalIdentity())
}

// Close is a no-op; stdio owns no resources.
func (t *StdioTransport) Close() error {
	return nil
}
