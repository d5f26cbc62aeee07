package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
	"github.com/Sentinel-Gate/hrgate/internal/domain/policy"
	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// AuditRecorder records audit events without blocking.
// This interface is satisfied by service.AuditService.
type AuditRecorder interface {
	Record(record audit.Record)
}

// CallObserver receives one observation per tool call.
// This interface is satisfied by the HTTP transport's metrics.
type CallObserver interface {
	ObserveToolCall(tool, outcome string, latency time.Duration)
}

// AuditInterceptor records every tool call with its policy decision and
// outcome. It wraps the policy interceptor so denials are audited too.
type AuditInterceptor struct {
	recorder AuditRecorder
	observer CallObserver // optional, may be nil
	next     MessageInterceptor
	logger   *slog.Logger
}

// NewAuditInterceptor creates a new AuditInterceptor.
func NewAuditInterceptor(recorder AuditRecorder, observer CallObserver, next MessageInterceptor, logger *slog.Logger) *AuditInterceptor {
	return &AuditInterceptor{
		recorder: recorder,
		observer: observer,
		next:     next,
		logger:   logger,
	}
}

// Intercept passes msg on and records the result. Non-tool-call messages
// are not audited.
func (a *AuditInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if !msg.IsToolCall() {
		return a.next.Intercept(ctx, msg)
	}

	start := time.Now()
	ctx = policy.WithDecisionHolder(ctx)

	result, err := a.next.Intercept(ctx, msg)

	record := a.buildRecord(ctx, msg, start, result, err)
	a.recorder.Record(record)
	if a.observer != nil {
		a.observer.ObserveToolCall(record.ToolName, record.Outcome, time.Since(start))
	}

	ctxkey.Logger(ctx, a.logger).Debug("audit recorded",
		"tool", record.ToolName,
		"decision", record.Decision,
		"outcome", record.Outcome,
		"latency_us", record.LatencyMicros,
	)

	return result, err
}

func (a *AuditInterceptor) buildRecord(ctx context.Context, msg *mcp.Message, start time.Time, result *mcp.Message, err error) audit.Record {
	record := audit.Record{
		ID:            uuid.NewString(),
		Timestamp:     start,
		RequestID:     ctxkey.String(ctx, ctxkey.RequestIDKey{}),
		Transport:     ctxkey.String(ctx, ctxkey.TransportKey{}),
		ToolName:      msg.ToolName(),
		ToolArguments: audit.RedactSensitiveArgs(msg.ToolArguments()),
		LatencyMicros: time.Since(start).Microseconds(),
		Decision:      audit.DecisionAllow,
		Outcome:       audit.OutcomeSuccess,
	}
	if record.RequestID == "" {
		record.RequestID = string(msg.RawID())
	}

	if msg.Caller != nil {
		record.IdentityID = msg.Caller.ID
		record.IdentityName = msg.Caller.Name
	} else {
		record.IdentityID = "anonymous"
	}

	if d := policy.DecisionFromContext(ctx); d != nil {
		record.Rule = d.RuleName
	}

	if err != nil {
		record.Decision = audit.DecisionDeny
		record.Outcome = audit.OutcomeBlocked
		switch {
		case errors.Is(err, ErrPolicyDenied):
			record.ErrorKind = "policy_denied"
		case errors.Is(err, ErrRateLimited):
			record.ErrorKind = "rate_limited"
		case errors.Is(err, ErrMissingCaller):
			record.ErrorKind = "unauthenticated"
		default:
			record.ErrorKind = "internal"
		}
		return record
	}

	if kind, failed := responseFailure(result); failed {
		record.Outcome = audit.OutcomeError
		record.ErrorKind = kind
	}
	return record
}

// responseFailure inspects a reply and reports whether it is a JSON-RPC
// error or a tool result flagged isError, with the error kind when known.
func responseFailure(result *mcp.Message) (string, bool) {
	if result == nil || result.Raw == nil {
		return "", false
	}
	var resp struct {
		Error  *jsonRPCErrorDetail `json:"error"`
		Result struct {
			IsError           bool `json:"isError"`
			StructuredContent struct {
				Error struct {
					Kind string `json:"kind"`
				} `json:"error"`
			} `json:"structuredContent"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result.Raw, &resp); err != nil {
		return "internal", true
	}
	if resp.Error != nil {
		return "protocol", true
	}
	if resp.Result.IsError {
		kind := resp.Result.StructuredContent.Error.Kind
		if kind == "" {
			kind = "internal"
		}
		return kind, true
	}
	return "", false
}

// Compile-time check that AuditInterceptor implements MessageInterceptor.
var _ MessageInterceptor = (*AuditInterceptor)(nil)
