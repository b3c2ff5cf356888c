// Package timeout bounds the blocking phases of a message exchange.
package timeout

import (
	"context"
	"time"
)

// TimeoutConfig configures timeout behavior for different operations
type TimeoutConfig struct {
	Message       time.Duration // Whole SendMessage exchange, all rounds included (0 = no timeout)
	ModelCall     time.Duration // Per model call, retries included (0 = no timeout)
	Approval      time.Duration // Per approval decision (0 = no timeout)
}

// DefaultTimeoutConfig returns sensible timeout defaults
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Message:       10 * time.Minute,
		ModelCall:     2 * time.Minute,
		Approval:      5 * time.Minute,
	}
}

// NoTimeouts returns a config with all timeouts disabled
func NoTimeouts() TimeoutConfig {
	return TimeoutConfig{}
}

// With derives a context bounded by d. A non-positive d leaves ctx
// unbounded; the returned cancel func is always safe to call.
func With(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
