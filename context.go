package vaultagent

import "context"

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	sessionIDKey contextKey = "vaultagent_session_id"
	roundKey     contextKey = "vaultagent_round"
	tracerKey    contextKey = "vaultagent_tracer"
)

// WithSession adds the session ID to the context
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// WithRound adds the 1-based round number to the context.
func WithRound(ctx context.Context, round int) context.Context {
	if round <= 0 {
		return ctx
	}
	return context.WithValue(ctx, roundKey, round)
}

// GetRound retrieves the round number from the context.
func GetRound(ctx context.Context) (int, bool) {
	val, ok := ctx.Value(roundKey).(int)
	return val, ok
}

// WithTracer adds a tracer to the context so middleware can open child spans.
func WithTracer(ctx context.Context, tracer Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, tracer)
}

// GetTracer retrieves the tracer from the context
// Returns nil if no tracer is in the context
func GetTracer(ctx context.Context) Tracer {
	tracer, _ := ctx.Value(tracerKey).(Tracer)
	return tracer
}
