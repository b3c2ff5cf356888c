package vaultagent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/darkostanimirovic/vaultagent"

// OTelTracer implements Tracer on top of an OpenTelemetry TracerProvider.
type OTelTracer struct {
	tracer   trace.Tracer
	provider trace.TracerProvider
}

// OTelConfig configures export of spans over OTLP/HTTP.
type OTelConfig struct {
	// Endpoint is the collector URL, e.g. "http://localhost:4318".
	Endpoint string
	// URLPath overrides the default "/v1/traces".
	URLPath string
	// Headers are sent with every export request.
	Headers        map[string]string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// LangfuseConfig holds configuration for exporting traces to Langfuse.
type LangfuseConfig struct {
	// PublicKey is the Langfuse public API key (pk-lf-...)
	PublicKey string
	// SecretKey is the Langfuse secret API key (sk-lf-...)
	SecretKey string
	// BaseURL defaults to "https://cloud.langfuse.com"
	BaseURL     string
	ServiceName string
	Environment string
}

// NewOTelTracer creates a tracer that batches spans to an OTLP/HTTP collector
// and installs its provider as the global one.
func NewOTelTracer(ctx context.Context, cfg OTelConfig) (*OTelTracer, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("vaultagent: OTLP endpoint is required")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vaultagent"
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(strings.TrimRight(endpoint, "/"))}
	if strings.HasPrefix(cfg.Endpoint, "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return NewOTelTracerWithProvider(tp), nil
}

// NewLangfuseTracer exports traces to Langfuse's OTLP endpoint.
func NewLangfuseTracer(ctx context.Context, cfg LangfuseConfig) (*OTelTracer, error) {
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("vaultagent: both PublicKey and SecretKey are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://cloud.langfuse.com"
	}
	auth := base64.StdEncoding.EncodeToString([]byte(cfg.PublicKey + ":" + cfg.SecretKey))
	return NewOTelTracer(ctx, OTelConfig{
		Endpoint:    cfg.BaseURL,
		URLPath:     "/api/public/otel/v1/traces",
		Headers:     map[string]string{"Authorization": "Basic " + auth},
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
}

// NewOTelTracerWithProvider wraps an existing TracerProvider.
func NewOTelTracerWithProvider(tp trace.TracerProvider) *OTelTracer {
	return &OTelTracer{
		tracer:   tp.Tracer(tracerName),
		provider: tp,
	}
}

// StartTrace opens the root span of a message exchange.
func (o *OTelTracer) StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, func()) {
	cfg := &TraceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	spanCtx, span := o.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))

	if cfg.SessionID != "" {
		span.SetAttributes(attribute.String("session.id", cfg.SessionID))
	}
	if len(cfg.Tags) > 0 {
		span.SetAttributes(attribute.StringSlice("vaultagent.tags", cfg.Tags))
	}
	if cfg.Input != nil {
		span.SetAttributes(attribute.String("vaultagent.input", toJSON(cfg.Input)))
	}
	for k, v := range cfg.Metadata {
		span.SetAttributes(attribute.String("vaultagent.metadata."+k, toJSON(v)))
	}

	return spanCtx, func() { span.End() }
}

// StartSpan creates a child span for a round or a tool dispatch.
func (o *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func()) {
	cfg := &SpanConfig{Type: SpanTypeSpan}
	for _, opt := range opts {
		opt(cfg)
	}

	spanCtx, span := o.tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("vaultagent.observation.type", string(cfg.Type)))
	if cfg.Input != nil {
		span.SetAttributes(attribute.String("vaultagent.input", toJSON(cfg.Input)))
	}
	for k, v := range cfg.Metadata {
		span.SetAttributes(attribute.String("vaultagent.metadata."+k, toJSON(v)))
	}

	return spanCtx, func() { span.End() }
}

// LogGeneration records a model call as a completed span using the
// GenAI semantic convention attribute names.
func (o *OTelTracer) LogGeneration(ctx context.Context, opts GenerationOptions) error {
	_, span := o.tracer.Start(ctx, opts.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(opts.StartTime),
	)
	defer span.End(trace.WithTimestamp(opts.EndTime))

	span.SetAttributes(
		attribute.String("vaultagent.observation.type", string(SpanTypeGeneration)),
		attribute.String("vaultagent.observation.level", string(opts.Level)),
	)
	if opts.Model != "" {
		span.SetAttributes(attribute.String("gen_ai.request.model", opts.Model))
	}
	if opts.ModelParameters != nil {
		span.SetAttributes(attribute.String("vaultagent.model.parameters", toJSON(opts.ModelParameters)))
	}
	if opts.Input != nil {
		span.SetAttributes(attribute.String("gen_ai.prompt", toJSON(opts.Input)))
	}
	if opts.Output != nil {
		span.SetAttributes(attribute.String("gen_ai.completion", toJSON(opts.Output)))
	}
	if opts.Usage != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", opts.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", opts.Usage.CompletionTokens),
			attribute.Int("gen_ai.usage.total_tokens", opts.Usage.TotalTokens),
		)
	}
	if opts.Cost != nil {
		span.SetAttributes(attribute.Float64("gen_ai.usage.cost", opts.Cost.TotalCost))
	}
	for k, v := range opts.Metadata {
		span.SetAttributes(attribute.String("vaultagent.metadata."+k, toJSON(v)))
	}
	if opts.StatusMessage != "" {
		span.SetAttributes(attribute.String("vaultagent.status_message", opts.StatusMessage))
		if opts.Level == LogLevelError {
			span.SetStatus(codes.Error, opts.StatusMessage)
		}
	}
	return nil
}

// LogEvent adds an event to the current span.
func (o *OTelTracer) LogEvent(ctx context.Context, name string, attributes map[string]any) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, toJSON(v)))
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
	return nil
}

// SetTraceAttributes sets attributes on the current span under the trace namespace.
func (o *OTelTracer) SetTraceAttributes(ctx context.Context, attributes map[string]any) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	for k, v := range attributes {
		span.SetAttributes(attribute.String("vaultagent.trace."+k, toJSON(v)))
	}
	return nil
}

// SetSpanOutput sets the output on the current span
func (o *OTelTracer) SetSpanOutput(ctx context.Context, output any) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() || output == nil {
		return nil
	}
	span.SetAttributes(attribute.String("vaultagent.output", toJSON(output)))
	return nil
}

// SetSpanAttributes sets attributes on the current span as metadata
func (o *OTelTracer) SetSpanAttributes(ctx context.Context, attributes map[string]any) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	for k, v := range attributes {
		span.SetAttributes(attribute.String("vaultagent.metadata."+k, toJSON(v)))
	}
	return nil
}

// Flush exports pending spans when the provider supports it.
func (o *OTelTracer) Flush(ctx context.Context) error {
	if f, ok := o.provider.(interface{ ForceFlush(context.Context) error }); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// Shutdown flushes and stops the provider when the provider supports it.
func (o *OTelTracer) Shutdown(ctx context.Context) error {
	if s, ok := o.provider.(interface{ Shutdown(context.Context) error }); ok {
		return s.Shutdown(ctx)
	}
	return nil
}

func toJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
