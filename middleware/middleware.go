// Package middleware defines observer hooks around a session exchange.
package middleware

import (
	"context"

	"github.com/darkostanimirovic/vaultagent/providers"
	"github.com/darkostanimirovic/vaultagent/tools"
)

// Middleware provides hooks into message handling for observability and instrumentation.
// Start hooks run in registration order and may enrich the context; complete
// hooks run in reverse order.
type Middleware interface {
	OnMessageStart(ctx context.Context, input string) context.Context
	OnMessageComplete(ctx context.Context, output string, err error)
	OnToolStart(ctx context.Context, call providers.ToolCall) context.Context
	OnToolComplete(ctx context.Context, call providers.ToolCall, result tools.ToolResult)
	OnModelCall(ctx context.Context, req providers.CompletionRequest) context.Context
	OnModelResponse(ctx context.Context, resp *providers.CompletionResponse, err error)
}

// BaseMiddleware provides no-op implementations for Middleware.
// Embed this in custom middleware to implement only the hooks you need.
type BaseMiddleware struct{}

func (BaseMiddleware) OnMessageStart(ctx context.Context, _ string) context.Context { return ctx }
func (BaseMiddleware) OnMessageComplete(context.Context, string, error)             {}
func (BaseMiddleware) OnToolStart(ctx context.Context, _ providers.ToolCall) context.Context {
	return ctx
}
func (BaseMiddleware) OnToolComplete(context.Context, providers.ToolCall, tools.ToolResult) {}
func (BaseMiddleware) OnModelCall(ctx context.Context, _ providers.CompletionRequest) context.Context {
	return ctx
}
func (BaseMiddleware) OnModelResponse(context.Context, *providers.CompletionResponse, error) {}

// Chain applies a list of middleware as one.
type Chain []Middleware

func (c Chain) OnMessageStart(ctx context.Context, input string) context.Context {
	for _, m := range c {
		ctx = m.OnMessageStart(ctx, input)
	}
	return ctx
}

func (c Chain) OnMessageComplete(ctx context.Context, output string, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].OnMessageComplete(ctx, output, err)
	}
}

func (c Chain) OnToolStart(ctx context.Context, call providers.ToolCall) context.Context {
	for _, m := range c {
		ctx = m.OnToolStart(ctx, call)
	}
	return ctx
}

func (c Chain) OnToolComplete(ctx context.Context, call providers.ToolCall, result tools.ToolResult) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].OnToolComplete(ctx, call, result)
	}
}

func (c Chain) OnModelCall(ctx context.Context, req providers.CompletionRequest) context.Context {
	for _, m := range c {
		ctx = m.OnModelCall(ctx, req)
	}
	return ctx
}

func (c Chain) OnModelResponse(ctx context.Context, resp *providers.CompletionResponse, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].OnModelResponse(ctx, resp, err)
	}
}
