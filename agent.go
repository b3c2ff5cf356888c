// Package vaultagent lets a hosted language model inspect and edit a vault
// of markdown notes through a fixed set of sandboxed tools.
package vaultagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/darkostanimirovic/vaultagent/internal/conversation"
	"github.com/darkostanimirovic/vaultagent/internal/logging"
	"github.com/darkostanimirovic/vaultagent/internal/retry"
	"github.com/darkostanimirovic/vaultagent/internal/timeout"
	"github.com/darkostanimirovic/vaultagent/middleware"
	"github.com/darkostanimirovic/vaultagent/providers"
	"github.com/darkostanimirovic/vaultagent/providers/openai"
	"github.com/darkostanimirovic/vaultagent/vault"
)

// Type aliases for internal package types
type (
	Turn          = conversation.Turn
	RetryConfig   = retry.RetryConfig
	TimeoutConfig = timeout.TimeoutConfig
	LoggingConfig = logging.LoggingConfig
	Middleware    = middleware.Middleware
)

// Function re-exports for convenience
var (
	DefaultRetryConfig   = retry.DefaultRetryConfig
	DefaultTimeoutConfig = timeout.DefaultTimeoutConfig
	DefaultLoggingConfig = logging.DefaultLoggingConfig
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxRounds = 10
	maxRoundsLimit   = 100
)

// DefaultSystemPrompt is sent ahead of the conversation when Config.SystemPrompt is nil.
const DefaultSystemPrompt = `You are an intelligent assistant for managing an Obsidian vault. You help users analyze, organize, and modify their markdown notes.

You have access to the following tools to interact with the vault:

1. **list_files** - List all files in the vault, optionally filtered by a glob pattern
2. **read_file** - Read the content of a specific file
3. **write_file** - Write or update content to a file
4. **search** - Search for lines containing specific text
5. **tree** - Show the vault's folder structure

When the user asks you to modify files:
- Always show what changes you plan to make before executing
- Be careful with destructive operations
- Preserve existing content unless explicitly asked to remove it
- Maintain proper markdown formatting

When analyzing files:
- Look for patterns, connections between notes, and opportunities for improvement
- Suggest relevant tags, links, or organizational changes
- Identify incomplete notes or areas that could be expanded

Always explain your actions and provide helpful context about what you're doing.`

// SystemPromptFunc builds the system prompt from context.
type SystemPromptFunc func(ctx context.Context) string

// Agent holds the configuration shared by every session.
type Agent struct {
	provider       providers.Provider
	model          string
	systemPrompt   SystemPromptFunc
	maxRounds      int
	temperature    float32
	timeoutConfig  TimeoutConfig
	approvalConfig ApprovalConfig
	loggingConfig  LoggingConfig
	logger         *slog.Logger
	middlewares    middleware.Chain
	tracer         Tracer
	onEvent        EventHandler
}

// Config holds agent configuration.
type Config struct {
	APIKey       string
	BaseURL      string // OpenAI-compatible endpoint; empty uses the OpenAI default
	Model        string
	SystemPrompt SystemPromptFunc
	// MaxRounds bounds the model calls made for one user message.
	MaxRounds   int
	Temperature float32
	// Provider replaces the OpenAI provider built from APIKey and BaseURL.
	Provider    providers.Provider
	Retry       *RetryConfig
	Timeout     *TimeoutConfig
	Logging     *LoggingConfig
	Approval    *ApprovalConfig
	Tracer      Tracer
	OnEvent     EventHandler
	Middlewares []Middleware
}

// Common validation errors.
var (
	ErrMissingAPIKey      = errors.New("vaultagent: APIKey is required")
	ErrInvalidRounds      = errors.New("vaultagent: MaxRounds must be between 1 and 100")
	ErrInvalidTemperature = errors.New("vaultagent: Temperature must be between 0.0 and 2.0")
)

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.APIKey == "" && c.Provider == nil {
		return ErrMissingAPIKey
	}
	if c.MaxRounds < 0 || c.MaxRounds > maxRoundsLimit {
		return ErrInvalidRounds
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return ErrInvalidTemperature
	}
	return nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:       defaultModel,
		MaxRounds:   defaultMaxRounds,
		Temperature: 0.7,
	}
}

// New creates a new agent with the given configuration.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = defaultMaxRounds
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	loggingConfig := DefaultLoggingConfig()
	if cfg.Logging != nil {
		loggingConfig = *cfg.Logging
	}
	logger := logging.ResolveLogger(loggingConfig)

	retryConfig := DefaultRetryConfig()
	if cfg.Retry != nil {
		retryConfig = *cfg.Retry
	}

	timeoutConfig := DefaultTimeoutConfig()
	if cfg.Timeout != nil {
		timeoutConfig = *cfg.Timeout
	}

	approvalConfig := ApprovalConfig{}
	if cfg.Approval != nil {
		approvalConfig = *cfg.Approval
	}

	provider := cfg.Provider
	if provider == nil {
		provider = openai.New(cfg.APIKey, logger,
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithRetry(retryConfig),
		)
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == nil {
		systemPrompt = func(context.Context) string { return DefaultSystemPrompt }
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = &NoOpTracer{}
	}

	a := &Agent{
		provider:       provider,
		model:          cfg.Model,
		systemPrompt:   systemPrompt,
		maxRounds:      cfg.MaxRounds,
		temperature:    cfg.Temperature,
		timeoutConfig:  timeoutConfig,
		approvalConfig: approvalConfig,
		loggingConfig:  loggingConfig,
		logger:         logger,
		tracer:         tracer,
		onEvent:        cfg.OnEvent,
	}
	for _, m := range cfg.Middlewares {
		a.Use(m)
	}
	return a, nil
}

// Use registers middleware for session hooks. It must not be called while
// a session is handling a message.
func (a *Agent) Use(m Middleware) {
	if m == nil {
		return
	}
	a.middlewares = append(a.middlewares, m)
}

// Model returns the model name sent with every request.
func (a *Agent) Model() string {
	return a.model
}

// MaxRounds returns the per-message round budget.
func (a *Agent) MaxRounds() int {
	return a.maxRounds
}

// StartSession opens the vault at vaultRoot and returns a session with an
// empty conversation. An invalid root fails here, before any turn.
func (a *Agent) StartSession(vaultRoot string) (*Session, error) {
	v, err := vault.New(vaultRoot, vault.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return newSession(a, v), nil
}
