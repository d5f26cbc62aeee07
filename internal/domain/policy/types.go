// Package policy contains domain types for tool-call authorization.
package policy

import "time"

// Action represents the result of a policy rule evaluation.
type Action string

const (
	// ActionAllow permits the tool call to proceed.
	ActionAllow Action = "allow"
	// ActionDeny blocks the tool call.
	ActionDeny Action = "deny"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	return a == ActionAllow || a == ActionDeny
}

// Rule defines a single authorization rule. Rules are evaluated in
// declaration order and the first rule whose condition holds decides.
type Rule struct {
	// Name identifies the rule in logs, audit records and denials.
	Name string
	// Condition is a CEL expression that must evaluate to true for the rule to apply.
	Condition string
	// Action is the result when the condition is true.
	Action Action
}

// Decision represents the outcome of policy evaluation for a tool call.
type Decision struct {
	// Allowed is true if the tool call is permitted.
	Allowed bool
	// RuleName is the rule that produced this decision, empty for the default.
	RuleName string
	// Reason explains why the decision was made.
	Reason string
}

// EvaluationContext contains all information needed to evaluate a rule.
type EvaluationContext struct {
	// ToolName is the name of the tool being invoked.
	ToolName string
	// ToolArguments are the arguments passed to the tool.
	ToolArguments map[string]interface{}
	// ReadOnly is true for tools that never write to the directory.
	ReadOnly bool
	// CallerRoles are the roles of the calling identity.
	CallerRoles []string
	// IdentityID is the calling identity.
	IdentityID string
	// IdentityName is the human-readable name of the identity.
	IdentityName string
	// Transport is "stdio" or "http".
	Transport string
	// RequestTime is when the tool call was received.
	RequestTime time.Time
}
