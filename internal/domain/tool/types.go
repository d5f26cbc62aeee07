// Package tool contains the domain types for the tools hrgate exposes over MCP.
package tool

import (
	"encoding/json"
	"fmt"
)

// Tool describes one entry of the tools/list response.
// Fields match the MCP specification 2025-06-18.
type Tool struct {
	// Name is the unique identifier for this tool (required).
	Name string `json:"name"`

	// Description is the human-readable description shown to the agent.
	Description string `json:"description,omitempty"`

	// InputSchema is the JSON Schema for the tool's arguments (required).
	InputSchema json.RawMessage `json:"inputSchema"`

	// Annotations carries the behavioral hints.
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ReadOnly reports whether the tool never writes to the directory.
func (t Tool) ReadOnly() bool {
	return t.Annotations != nil && t.Annotations.ReadOnlyHint
}

// Annotations are the MCP tool behavior hints.
type Annotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint"`
	DestructiveHint bool   `json:"destructiveHint"`
	IdempotentHint  bool   `json:"idempotentHint"`
	OpenWorldHint   bool   `json:"openWorldHint"`
}

// Content is a single content block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result of a tools/call request.
type CallResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// NewTextResult returns a result with a single verbatim text block.
func NewTextResult(text string) *CallResult {
	return &CallResult{Content: []Content{{Type: "text", Text: text}}}
}

// NewJSONResult renders v as indented JSON text. When v encodes to a JSON
// object it is also attached as structured content.
func NewJSONResult(v any) (*CallResult, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	res := NewTextResult(string(text))
	if len(text) > 0 && text[0] == '{' {
		res.StructuredContent = json.RawMessage(text)
	}
	return res, nil
}

// NewErrorResult returns a failed tool result. The message is the text the
// agent sees; detail, when not nil, becomes the structured content.
func NewErrorResult(message string, detail any) *CallResult {
	res := NewTextResult(message)
	res.IsError = true
	res.StructuredContent = detail
	return res
}
