// Package service contains the application services behind the MCP
// transports: the directory operations and their tools, the message loop,
// policy loading and asynchronous auditing.
package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
	"github.com/Sentinel-Gate/hrgate/internal/domain/dispatch"
	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// Scanner limits for newline-delimited messages.
const (
	initialLineBuffer = 256 * 1024
	maxLineSize       = 1024 * 1024
)

// ServerService feeds client messages through the interceptor chain and
// produces the replies. It is shared by the stdio and HTTP transports.
type ServerService struct {
	chain  dispatch.MessageInterceptor
	logger *slog.Logger
}

// NewServerService creates a ServerService over chain.
func NewServerService(chain dispatch.MessageInterceptor, logger *slog.Logger) *ServerService {
	return &ServerService{chain: chain, logger: logger}
}

// Handle processes one raw JSON-RPC message from caller and returns the
// encoded reply, or nil when the message needs none.
func (s *ServerService) Handle(ctx context.Context, raw []byte, caller *auth.Identity) []byte {
	start := time.Now()
	logger := ctxkey.Logger(ctx, s.logger)

	// Undecodable input is left for the validation interceptor to reject.
	msg, err := mcp.ReadRequest(raw, caller)
	if err != nil {
		logger.Debug("failed to decode message", "error", err)
	}

	reply, err := s.chain.Intercept(ctx, msg)
	if err != nil {
		if isNotification(msg) {
			logger.Debug("dropped failing notification", "method", msg.Method(), "error", err)
			return nil
		}
		code := dispatch.ErrorCode(err)
		logger.Warn("request rejected",
			"method", msg.Method(),
			"code", code,
			"error", err,
		)
		return dispatch.CreateJSONRPCError(msg.RawID(), code, dispatch.SafeErrorMessage(err))
	}
	if reply == nil || reply.Direction != mcp.ServerToClient {
		return nil
	}

	logger.Debug("request handled",
		"method", msg.Method(),
		"latency_us", time.Since(start).Microseconds(),
	)
	return reply.Raw
}

// Run reads newline-delimited messages from in and writes each reply,
// followed by a newline, to out. It returns nil when in reaches EOF and
// ctx.Err() when the context ends first.
func (s *ServerService) Run(ctx context.Context, in io.Reader, out io.Writer, caller *auth.Identity) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		reply := s.Handle(ctx, line, caller)
		if reply == nil {
			continue
		}
		if _, err := out.Write(append(reply, '\n')); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read messages: %w", err)
	}
	return ctx.Err()
}

// isNotification reports whether msg is a request without an ID.
func isNotification(msg *mcp.Message) bool {
	req := msg.Request()
	return req != nil && !req.IsCall()
}
