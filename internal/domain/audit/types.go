// Package audit contains domain types for audit logging of tool calls.
package audit

import (
	"strings"
	"time"
)

// Decision constants for audit records.
const (
	// DecisionAllow indicates the tool call was permitted by policy.
	DecisionAllow = "allow"
	// DecisionDeny indicates the tool call was blocked by policy.
	DecisionDeny = "deny"
)

// Outcome constants describe how an allowed call ended.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeBlocked = "blocked"
)

// Record is a single audited tool call.
type Record struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`
	// Timestamp is when the tool call was received.
	Timestamp time.Time `json:"timestamp"`
	// RequestID correlates the record with HTTP request logs.
	RequestID string `json:"request_id,omitempty"`
	// Transport is "stdio" or "http".
	Transport string `json:"transport"`
	// IdentityID of the caller.
	IdentityID string `json:"identity_id"`
	// IdentityName is the human-readable caller name.
	IdentityName string `json:"identity_name,omitempty"`
	// ToolName is the name of the tool being invoked.
	ToolName string `json:"tool_name"`
	// ToolArguments are the arguments passed to the tool, redacted.
	ToolArguments map[string]interface{} `json:"tool_arguments,omitempty"`
	// Decision is "allow" or "deny".
	Decision string `json:"decision"`
	// Rule is the policy rule that decided, if any.
	Rule string `json:"rule,omitempty"`
	// Outcome is "success", "error" or "blocked".
	Outcome string `json:"outcome"`
	// ErrorKind is the directory error kind for failed calls.
	ErrorKind string `json:"error_kind,omitempty"`
	// LatencyMicros is the end-to-end handling time.
	LatencyMicros int64 `json:"latency_us"`
}

// sensitiveKeywords lists substrings that indicate a sensitive argument key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "private_key", "privatekey", "ssn",
}

// RedactSensitiveArgs returns a copy of args with sensitive values masked.
// Nested objects such as post_user_data's data are redacted recursively.
func RedactSensitiveArgs(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	redacted := make(map[string]interface{}, len(args))
	for k, v := range args {
		switch {
		case isSensitiveKey(k):
			redacted[k] = "***REDACTED***"
		default:
			if nested, ok := v.(map[string]interface{}); ok {
				redacted[k] = RedactSensitiveArgs(nested)
			} else {
				redacted[k] = v
			}
		}
	}
	return redacted
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
