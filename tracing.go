package vaultagent

import (
	"context"
	"time"

	"github.com/darkostanimirovic/vaultagent/providers"
)

// Tracer receives the observations of a session: one trace per user
// message, a span per round and per tool dispatch, and a generation per
// model call. OTelTracer is the bundled implementation.
type Tracer interface {
	// StartTrace opens the root observation of one message. The returned
	// function ends it.
	StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, func())

	// StartSpan opens a child of the observation in ctx.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func())

	// LogGeneration records a finished model call.
	LogGeneration(ctx context.Context, opts GenerationOptions) error

	// LogEvent attaches a point-in-time event, such as an approval decision,
	// to the observation in ctx.
	LogEvent(ctx context.Context, name string, attributes map[string]any) error

	SetTraceAttributes(ctx context.Context, attributes map[string]any) error
	SetSpanOutput(ctx context.Context, output any) error
	SetSpanAttributes(ctx context.Context, attributes map[string]any) error

	// Flush exports anything still buffered. Call it before a short-lived
	// process exits.
	Flush(ctx context.Context) error
}

type TraceOption func(*TraceConfig)

type SpanOption func(*SpanConfig)

// TraceConfig describes the root observation of a message.
type TraceConfig struct {
	// SessionID ties the traces of one conversation together.
	SessionID string
	Tags      []string
	Metadata  map[string]any
	// Input is the user message, empty for Resume.
	Input any
}

// SpanConfig describes a round or tool span.
type SpanConfig struct {
	Type     SpanType
	Input    any
	Metadata map[string]any
}

// SpanType classifies an observation.
type SpanType string

const (
	SpanTypeSpan       SpanType = "span"
	SpanTypeGeneration SpanType = "generation"
	SpanTypeTool       SpanType = "tool"
)

// LogLevel is the severity attached to a generation.
type LogLevel string

const (
	LogLevelDefault LogLevel = "DEFAULT"
	// LogLevelWarning marks a reply cut off by the token limit.
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// GenerationOptions carries one model call to LogGeneration.
type GenerationOptions struct {
	Name            string
	Model           string
	ModelParameters map[string]any
	Input           any
	Output          any
	Usage           *providers.TokenUsage
	// Cost is an estimate; see CalculateCost
	Cost          *CostInfo
	Metadata      map[string]any
	StartTime     time.Time
	EndTime       time.Time
	Level         LogLevel
	StatusMessage string
}

func WithSessionID(sessionID string) TraceOption {
	return func(c *TraceConfig) {
		c.SessionID = sessionID
	}
}

func WithTags(tags ...string) TraceOption {
	return func(c *TraceConfig) {
		c.Tags = append(c.Tags, tags...)
	}
}

// WithMetadata merges metadata into the trace; later keys win.
func WithMetadata(metadata map[string]any) TraceOption {
	return func(c *TraceConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

func WithTraceInput(input any) TraceOption {
	return func(c *TraceConfig) {
		c.Input = input
	}
}

func WithSpanType(spanType SpanType) SpanOption {
	return func(c *SpanConfig) {
		c.Type = spanType
	}
}

func WithSpanInput(input any) SpanOption {
	return func(c *SpanConfig) {
		c.Input = input
	}
}

func WithSpanMetadata(metadata map[string]any) SpanOption {
	return func(c *SpanConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// NoOpTracer is installed when Config.Tracer is nil.
type NoOpTracer struct{}

func (n *NoOpTracer) StartTrace(ctx context.Context, _ string, _ ...TraceOption) (context.Context, func()) {
	return ctx, func() {}
}

func (n *NoOpTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, func()) {
	return ctx, func() {}
}

func (n *NoOpTracer) LogGeneration(context.Context, GenerationOptions) error   { return nil }
func (n *NoOpTracer) LogEvent(context.Context, string, map[string]any) error   { return nil }
func (n *NoOpTracer) SetTraceAttributes(context.Context, map[string]any) error { return nil }
func (n *NoOpTracer) SetSpanOutput(context.Context, any) error                 { return nil }
func (n *NoOpTracer) SetSpanAttributes(context.Context, map[string]any) error  { return nil }
func (n *NoOpTracer) Flush(context.Context) error                              { return nil }

func isNoOpTracer(t Tracer) bool {
	_, ok := t.(*NoOpTracer)
	return ok
}
