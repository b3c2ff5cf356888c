// Package logging resolves the slog logger used across vaultagent.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// ScopeName identifies vaultagent log records sent through the OTel bridge.
const ScopeName = "github.com/darkostanimirovic/vaultagent"

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Logger overrides the logger if provided.
	Logger *slog.Logger

	// Handler is used to build a logger if Logger is nil.
	Handler slog.Handler

	// Level is used when creating a default handler if Logger and Handler are nil.
	Level slog.Level

	// OTelBridge routes records to the global OpenTelemetry LoggerProvider
	// instead of stderr when Logger and Handler are nil.
	OTelBridge bool

	// LogResponses enables logging model response summaries.
	LogResponses bool

	// LogToolCalls enables logging tool call arguments and results.
	LogToolCalls bool

	// RedactSensitive enables best-effort redaction of sensitive fields in logs.
	RedactSensitive bool
}

// DefaultLoggingConfig returns default logging configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:           slog.LevelInfo,
		LogResponses:    false,
		LogToolCalls:    false,
		RedactSensitive: true,
	}
}

// Silent returns a copy of the config that discards all output.
func (c LoggingConfig) Silent() *LoggingConfig {
	c.Logger = nil
	c.Handler = slog.NewTextHandler(io.Discard, nil)
	return &c
}

// Verbose returns a copy of the config that logs at debug level with
// tool calls and responses enabled.
func (c LoggingConfig) Verbose() *LoggingConfig {
	c.Level = slog.LevelDebug
	c.LogResponses = true
	c.LogToolCalls = true
	return &c
}

// ResolveLogger builds the logger described by cfg.
func ResolveLogger(cfg LoggingConfig) *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.Handler != nil {
		return slog.New(cfg.Handler)
	}
	if cfg.OTelBridge {
		return otelslog.NewLogger(ScopeName)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level}))
}

var sensitiveKeys = map[string]struct{}{
	"api_key":        {},
	"apikey":         {},
	"authorization":  {},
	"token":          {},
	"password":       {},
	"secret":         {},
	"access_token":   {},
	"refresh_token":  {},
	"client_secret":  {},
	"private_key":    {},
	"session_token":  {},
	"bearer":         {},
	"x-api-key":      {},
	"openai_api_key": {},
}

// Redact returns value with sensitive keys replaced, walking nested maps
// and slices. Values that do not round-trip through JSON are returned as is.
func Redact(value any) any {
	data, err := json.Marshal(value)
	if err != nil {
		return value
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return value
	}

	return redactAny(decoded)
}

func redactAny(value any) any {
	switch v := value.(type) {
	case map[string]any:
		redacted := make(map[string]any, len(v))
		for key, val := range v {
			if isSensitiveKey(key) {
				redacted[key] = "[redacted]"
				continue
			}
			redacted[key] = redactAny(val)
		}
		return redacted
	case []any:
		redacted := make([]any, len(v))
		for i, item := range v {
			redacted[i] = redactAny(item)
		}
		return redacted
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Truncate shortens s to at most n bytes for log output.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
