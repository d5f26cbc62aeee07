package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
	"github.com/Sentinel-Gate/hrgate/internal/domain/policy"
	"github.com/Sentinel-Gate/hrgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/hrgate/internal/domain/tool"
	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wrap decodes raw into a client message with the given caller.
func wrap(t *testing.T, raw string, caller *auth.Identity) *mcp.Message {
	t.Helper()
	msg, err := mcp.ReadRequest([]byte(raw), caller)
	if err != nil {
		t.Fatalf("ReadRequest(%s) error = %v", raw, err)
	}
	return msg
}

func toolCall(t *testing.T, name string, args string) *mcp.Message {
	t.Helper()
	return wrap(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"`+name+`","arguments":`+args+`}}`, auth.LocalIdentity())
}

// decodeReply unmarshals a reply's raw bytes into a generic map.
func decodeReply(t *testing.T, msg *mcp.Message) map[string]any {
	t.Helper()
	if msg == nil {
		t.Fatal("expected a reply, got nil")
	}
	if msg.Direction != mcp.ServerToClient {
		t.Errorf("reply direction = %v", msg.Direction)
	}
	var out map[string]any
	if err := json.Unmarshal(msg.Raw, &out); err != nil {
		t.Fatalf("reply is not JSON: %v (%s)", err, msg.Raw)
	}
	return out
}

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	schema := json.RawMessage(`{"type":"object"}`)

	must := func(err error) {
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	must(r.Register(tool.Tool{Name: "get_user_data", InputSchema: schema, Annotations: &tool.Annotations{ReadOnlyHint: true}},
		func(_ context.Context, args json.RawMessage) (*tool.CallResult, error) {
			var a struct {
				UserID string `json:"userId"`
			}
			if err := json.Unmarshal(args, &a); err != nil || a.UserID == "" {
				return nil, &tool.ArgumentError{Tool: "get_user_data", Err: errors.New("userId is required")}
			}
			if a.UserID == "ghost" {
				return tool.NewErrorResult("User not found: ghost", map[string]any{"error": map[string]any{"kind": "not_found"}}), nil
			}
			return tool.NewJSONResult(map[string]any{"USERID": a.UserID})
		}))
	must(r.Register(tool.Tool{Name: "post_user_data", InputSchema: schema},
		func(context.Context, json.RawMessage) (*tool.CallResult, error) {
			return nil, errors.New("dial tcp 10.0.0.1:443: connection refused")
		}))
	return r
}

// fakeEngine implements policy.PolicyEngine.
type fakeEngine struct {
	decision policy.Decision
	err      error
	seen     []policy.EvaluationContext
	mu       sync.Mutex
}

func (f *fakeEngine) Evaluate(_ context.Context, evalCtx policy.EvaluationContext) (policy.Decision, error) {
	f.mu.Lock()
	f.seen = append(f.seen, evalCtx)
	f.mu.Unlock()
	return f.decision, f.err
}

// fakeLimiter implements ratelimit.Limiter.
type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ ratelimit.Config) (ratelimit.Result, error) {
	f.keys = append(f.keys, key)
	return ratelimit.Result{Allowed: f.allowed, RetryAfter: time.Second}, f.err
}

// recordingRecorder implements AuditRecorder.
type recordingRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *recordingRecorder) Record(rec audit.Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

type observation struct {
	tool, outcome string
}

type recordingObserver struct {
	seen []observation
}

func (o *recordingObserver) ObserveToolCall(tool, outcome string, _ time.Duration) {
	o.seen = append(o.seen, observation{tool, outcome})
}

// terminal is a MessageInterceptor that counts calls and returns a fixed reply.
type terminal struct {
	calls int
	reply *mcp.Message
	err   error
}

func (t *terminal) Intercept(_ context.Context, msg *mcp.Message) (*mcp.Message, error) {
	t.calls++
	if t.reply == nil && t.err == nil {
		return msg, nil
	}
	return t.reply, t.err
}
