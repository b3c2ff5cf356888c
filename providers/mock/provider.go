// Package mock implements a scripted Provider for testing.
package mock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/darkostanimirovic/vaultagent/providers"
)

var ErrNoResponse = errors.New("mock: no response configured")

// HandlerFunc produces a response for a single Complete call.
type HandlerFunc func(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error)

// Provider implements providers.Provider for testing. Scripted steps are
// consumed in order, one per Complete call.
type Provider struct {
	mu       sync.Mutex
	steps    []HandlerFunc
	requests []providers.CompletionRequest
}

// New creates a new mock provider.
func New() *Provider {
	return &Provider{}
}

// WithResponse appends a mock completion response.
func (m *Provider) WithResponse(content string, toolCalls []providers.ToolCall) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.steps) + 1
	resp := &providers.CompletionResponse{
		ID:           fmt.Sprintf("mock-resp-%d", n),
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: providers.FinishReasonStop,
		Model:        "mock-model",
		Created:      time.Now(),
		Usage: providers.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}

	if len(toolCalls) > 0 {
		resp.FinishReason = providers.FinishReasonToolCalls
	}

	m.steps = append(m.steps, func(context.Context, providers.CompletionRequest) (*providers.CompletionResponse, error) {
		return resp, nil
	})
	return m
}

// WithToolCall appends a response requesting a single tool call.
func (m *Provider) WithToolCall(id, name string, args map[string]any) *Provider {
	return m.WithResponse("", []providers.ToolCall{{ID: id, Name: name, Arguments: args}})
}

// WithError appends a failing step. Errors that do not already wrap
// providers.ErrModelUnavailable are wrapped with it.
func (m *Provider) WithError(err error) *Provider {
	if !errors.Is(err, providers.ErrModelUnavailable) {
		err = fmt.Errorf("%w: %w", providers.ErrModelUnavailable, err)
	}
	return m.WithHandler(func(context.Context, providers.CompletionRequest) (*providers.CompletionResponse, error) {
		return nil, err
	})
}

// WithHandler appends a custom step.
func (m *Provider) WithHandler(fn HandlerFunc) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, fn)
	return m
}

// Name returns the provider name.
func (m *Provider) Name() string {
	return "mock"
}

// Complete records the request and runs the next scripted step.
func (m *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	m.mu.Lock()
	req.Messages = slices.Clone(req.Messages)
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", providers.ErrModelUnavailable, ErrNoResponse)
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	return step(ctx, req)
}

// CallCount returns the number of times Complete was called.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received so far.
func (m *Provider) Requests() []providers.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

// Remaining returns the number of unconsumed steps.
func (m *Provider) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}
