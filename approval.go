package vaultagent

import (
	"context"
	"slices"
)

// ApprovalHandler decides whether a vault tool call may run. A false
// result or an error is reported to the model as a Rejected tool result.
type ApprovalHandler func(ctx context.Context, request ApprovalRequest) (bool, error)

// ApprovalRequest describes the pending tool call shown to the user.
type ApprovalRequest struct {
	ToolName    string         `json:"tool_name"`
	Arguments   map[string]any `json:"arguments"`
	Description string         `json:"description"`
	SessionID   string         `json:"session_id"`
	CallID      string         `json:"call_id"`
}

// ApprovalConfig gates vault tools behind a confirmation step.
type ApprovalConfig struct {
	// Tools names the gated tools, usually just write_file.
	Tools []string

	// Handler asks the user. With no handler every gated call is rejected.
	Handler ApprovalHandler

	// AllTools gates reads as well as writes.
	AllTools bool
}

// WriteApproval requires approval for write_file only.
func WriteApproval(handler ApprovalHandler) *ApprovalConfig {
	return &ApprovalConfig{Tools: []string{"write_file"}, Handler: handler}
}

func (c ApprovalConfig) requiresApproval(toolName string) bool {
	return c.AllTools || slices.Contains(c.Tools, toolName)
}
