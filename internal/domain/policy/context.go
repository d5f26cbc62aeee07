package policy

import "context"

// policyDecisionKey is the context key type for policy decisions.
type policyDecisionKey struct{}

// decisionHolder lets an outer interceptor observe the decision taken by an
// inner one.
type decisionHolder struct {
	decision *Decision
}

// WithDecisionHolder returns a context able to carry the decision made
// further down the interceptor chain.
func WithDecisionHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, policyDecisionKey{}, &decisionHolder{})
}

// StoreDecision records d in the holder installed by WithDecisionHolder.
// It is a no-op when no holder is present.
func StoreDecision(ctx context.Context, d Decision) {
	if h, ok := ctx.Value(policyDecisionKey{}).(*decisionHolder); ok {
		h.decision = &d
	}
}

// DecisionFromContext retrieves the stored decision, or nil.
func DecisionFromContext(ctx context.Context) *Decision {
	h, ok := ctx.Value(policyDecisionKey{}).(*decisionHolder)
	if !ok {
		return nil
	}
	return h.decision
}
