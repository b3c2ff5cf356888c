// Package openai implements the Provider interface over OpenAI's Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/darkostanimirovic/vaultagent/internal/retry"
	"github.com/darkostanimirovic/vaultagent/providers"
)

// emptyToolContent stands in for a tool result with no text.
const emptyToolContent = "(empty)"

// Provider implements providers.Provider for OpenAI.
type Provider struct {
	client *openai.Client
	retry  retry.RetryConfig
	logger *slog.Logger
}

// Option customizes a Provider.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	retry      *retry.RetryConfig
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithRetry sets the backoff policy applied to each Complete call.
func WithRetry(cfg retry.RetryConfig) Option {
	return func(o *options) { o.retry = &cfg }
}

// New creates a new OpenAI provider.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.baseURL, "/")
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	} else {
		cfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	retryConfig := retry.DefaultRetryConfig()
	if o.retry != nil {
		retryConfig = *o.retry
	}
	if retryConfig.Logger == nil {
		retryConfig.Logger = logger
	}

	return &Provider{
		client: openai.NewClientWithConfig(cfg),
		retry:  retryConfig,
		logger: logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Complete sends the conversation and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	apiReq := p.toAPIRequest(req)

	resp, err := retry.WithRetry(ctx, p.retry, func() (openai.ChatCompletionResponse, error) {
		r, err := p.client.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			return r, classifyError(err)
		}
		return r, nil
	})
	if err != nil {
		if !errors.Is(err, providers.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %w", providers.ErrModelUnavailable, err)
		}
		return nil, err
	}

	out, err := p.fromAPIResponse(resp)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) toAPIRequest(req providers.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, p.toAPIMessages(req.Messages)...)

	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       toAPITools(req.Tools),
	}
	if len(apiReq.Tools) > 0 && req.ToolChoice != "" {
		apiReq.ToolChoice = req.ToolChoice
	}
	return apiReq
}

func (p *Provider) toAPIMessages(messages []providers.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		apiMsg := openai.ChatCompletionMessage{
			Content: msg.Content,
			Name:    msg.Name,
		}
		switch msg.Role {
		case providers.RoleSystem:
			apiMsg.Role = openai.ChatMessageRoleSystem
		case providers.RoleAssistant:
			apiMsg.Role = openai.ChatMessageRoleAssistant
			for _, tc := range msg.ToolCalls {
				apiMsg.ToolCalls = append(apiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: p.encodeArguments(tc),
					},
				})
			}
		case providers.RoleTool:
			apiMsg.Role = openai.ChatMessageRoleTool
			apiMsg.ToolCallID = msg.ToolCallID
			// The API rejects tool messages without content, and go-openai
			// omits an empty string.
			if apiMsg.Content == "" {
				apiMsg.Content = emptyToolContent
			}
		default:
			apiMsg.Role = openai.ChatMessageRoleUser
		}
		out = append(out, apiMsg)
	}
	return out
}

func (p *Provider) encodeArguments(tc providers.ToolCall) string {
	if tc.RawArguments != "" {
		return tc.RawArguments
	}
	if tc.Arguments == nil {
		return "{}"
	}
	data, err := json.Marshal(tc.Arguments)
	if err != nil {
		p.logger.Warn("failed to encode tool arguments", "tool", tc.Name, "error", err)
		return "{}"
	}
	return string(data)
}

func toAPITools(defs []providers.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(defs))
	for i, def := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}
	return out
}

func (p *Provider) fromAPIResponse(resp openai.ChatCompletionResponse) (*providers.CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", providers.ErrModelUnavailable)
	}
	choice := resp.Choices[0]

	out := &providers.CompletionResponse{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		FinishReason: providers.FinishReason(choice.FinishReason),
		Model:        resp.Model,
		Created:      time.Unix(resp.Created, 0),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		call := providers.ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		}
		raw := strings.TrimSpace(tc.Function.Arguments)
		if raw == "" {
			call.Arguments = map[string]any{}
		} else if err := json.Unmarshal([]byte(raw), &call.Arguments); err != nil {
			p.logger.Warn("tool call arguments are not a JSON object", "tool", tc.Function.Name, "error", err)
			call.Arguments = nil
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}

	return out, nil
}

// classifyError maps client failures onto the provider sentinels. The
// result always wraps ErrModelUnavailable and the original error.
func classifyError(err error) error {
	var status int
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w: %w", providers.ErrModelUnavailable, providers.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", providers.ErrModelUnavailable, err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %w", providers.ErrModelUnavailable, providers.ErrRateLimited, err)
	case status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %w: %w", providers.ErrModelUnavailable, providers.ErrTimeout, err)
	case status >= 500:
		return fmt.Errorf("%w: %w: %w", providers.ErrModelUnavailable, providers.ErrServerError, err)
	case status >= 400:
		return fmt.Errorf("%w: %w: %w", providers.ErrModelUnavailable, providers.ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %w", providers.ErrModelUnavailable, err)
	}
}
