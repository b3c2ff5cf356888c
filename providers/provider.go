// Package providers defines provider-agnostic interfaces and domain models for LLM interactions.
package providers

import (
	"context"
	"errors"
	"time"
)

// Model call failures. Every error a Provider returns from Complete wraps
// ErrModelUnavailable; the more specific sentinels are wrapped alongside it.
var (
	ErrModelUnavailable = errors.New("providers: model unavailable")
	ErrRateLimited      = errors.New("providers: rate limit exceeded")
	ErrInvalidRequest   = errors.New("providers: invalid request")
	ErrServerError      = errors.New("providers: server error (5xx)")
	ErrTimeout          = errors.New("providers: request timeout")
)

// Provider defines the interface for any LLM provider.
// Implementations: OpenAI chat completions, mocks.
type Provider interface {
	// Complete sends the full conversation and blocks until a complete
	// response or a failure is available.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "openai").
	Name() string
}

// CompletionRequest represents a provider-agnostic request for completion.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float32
	MaxTokens    int
	ToolChoice   string
	Metadata     map[string]string
}

// CompletionResponse represents a provider-agnostic completion response.
type CompletionResponse struct {
	ID           string
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        TokenUsage
	Model        string
	Created      time.Time
}

// Message represents a single message in a conversation.
type Message struct {
	Role       MessageRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // For tool result messages
	Name       string // Optional name
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	// RawArguments holds the arguments as sent by the model. It is set
	// whenever the provider received them as text, including when they
	// failed to decode and Arguments is nil.
	RawArguments string
}

// ToolDefinition defines a tool that can be called by the agent.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
	FinishReasonError     FinishReason = "error"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add returns the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}
