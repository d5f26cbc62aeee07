package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/policy"
	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// PolicyInterceptor evaluates tool calls against the policy engine and
// blocks denied calls before they reach the router.
type PolicyInterceptor struct {
	engine   policy.PolicyEngine
	registry ToolRegistry
	next     MessageInterceptor
	logger   *slog.Logger
}

// NewPolicyInterceptor creates a new PolicyInterceptor. registry supplies
// the read-only flag of the called tool.
func NewPolicyInterceptor(engine policy.PolicyEngine, registry ToolRegistry, next MessageInterceptor, logger *slog.Logger) *PolicyInterceptor {
	return &PolicyInterceptor{
		engine:   engine,
		registry: registry,
		next:     next,
		logger:   logger,
	}
}

// Intercept returns a *PolicyDenyError for denied calls. An evaluation
// failure also blocks the call.
func (p *PolicyInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if !msg.IsToolCall() {
		return p.next.Intercept(ctx, msg)
	}
	logger := ctxkey.Logger(ctx, p.logger)

	if msg.Caller == nil {
		logger.Warn("tool call without caller identity")
		return nil, ErrMissingCaller
	}

	evalCtx := p.buildEvaluationContext(ctx, msg)
	decision, err := p.engine.Evaluate(ctx, evalCtx)
	if err != nil {
		logger.Error("policy evaluation failed",
			"error", err,
			"tool", evalCtx.ToolName,
		)
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}
	policy.StoreDecision(ctx, decision)

	if !decision.Allowed {
		logger.Info("tool call denied by policy",
			"tool", evalCtx.ToolName,
			"rule", decision.RuleName,
			"reason", decision.Reason,
			"identity_id", evalCtx.IdentityID,
		)
		return nil, &PolicyDenyError{RuleName: decision.RuleName, Reason: decision.Reason}
	}

	logger.Debug("tool call allowed by policy",
		"tool", evalCtx.ToolName,
		"rule", decision.RuleName,
	)
	return p.next.Intercept(ctx, msg)
}

func (p *PolicyInterceptor) buildEvaluationContext(ctx context.Context, msg *mcp.Message) policy.EvaluationContext {
	name := msg.ToolName()
	readOnly := false
	if t, _, ok := p.registry.Lookup(name); ok {
		readOnly = t.ReadOnly()
	}

	return policy.EvaluationContext{
		ToolName:      name,
		ToolArguments: msg.ToolArguments(),
		ReadOnly:      readOnly,
		CallerRoles:   msg.Caller.RoleNames(),
		IdentityID:    msg.Caller.ID,
		IdentityName:  msg.Caller.Name,
		Transport:     ctxkey.String(ctx, ctxkey.TransportKey{}),
		RequestTime:   msg.Timestamp,
	}
}

// Compile-time check that PolicyInterceptor implements MessageInterceptor.
var _ MessageInterceptor = (*PolicyInterceptor)(nil)
