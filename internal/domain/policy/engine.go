package policy

import "context"

// PolicyEngine evaluates tool calls against the configured rules.
type PolicyEngine interface {
	// Evaluate returns the decision for a single tool call.
	Evaluate(ctx context.Context, evalCtx EvaluationContext) (Decision, error)
}
