package vaultagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darkostanimirovic/vaultagent/internal/conversation"
	"github.com/darkostanimirovic/vaultagent/internal/logging"
	"github.com/darkostanimirovic/vaultagent/internal/timeout"
	"github.com/darkostanimirovic/vaultagent/providers"
	"github.com/darkostanimirovic/vaultagent/tools"
	"github.com/darkostanimirovic/vaultagent/vault"
)

const logTruncateLength = 200

// Session is one conversation against one vault. It handles a single
// message at a time; a concurrent SendMessage or Resume fails with
// ErrSessionBusy.
type Session struct {
	id       string
	agent    *Agent
	vault    *vault.Vault
	registry *tools.Registry
	toolDefs []providers.ToolDefinition
	state    *conversation.State
	logger   *slog.Logger

	// mu is held for the whole exchange.
	mu sync.Mutex

	usageMu sync.Mutex
	usage   Usage
}

func newSession(a *Agent, v *vault.Vault) *Session {
	id := uuid.NewString()
	registry := tools.NewRegistry(v)
	return &Session{
		id:       id,
		agent:    a,
		vault:    v,
		registry: registry,
		toolDefs: registry.Definitions(),
		state:    conversation.New(),
		logger:   a.logger.With("session_id", id),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Vault returns the accessor the session's tools operate on.
func (s *Session) Vault() *vault.Vault {
	return s.vault
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []Turn {
	return s.state.Snapshot()
}

// Usage returns the tokens and estimated cost accumulated by the session.
func (s *Session) Usage() Usage {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	u := s.usage
	if u.Cost != nil {
		c := *u.Cost
		u.Cost = &c
	}
	return u
}

// Reset clears the conversation back to empty. It waits for an exchange in
// progress to finish. Usage is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Reset()
	s.logger.Info("conversation reset")
}

// SendMessage appends text as a user turn and runs rounds until the model
// gives a final answer. Exchanges that end without one return an
// *AbortError; turns completed before the abort are kept.
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	if !s.mu.TryLock() {
		return "", ErrSessionBusy
	}
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	if err := s.state.Append(Turn{Role: conversation.RoleUser, Content: text}); err != nil {
		return "", fmt.Errorf("append user turn: %w", err)
	}

	return s.run(ctx, text)
}

// Resume runs rounds from the current conversation without adding a user
// turn, typically after SendMessage aborted.
func (s *Session) Resume(ctx context.Context) (string, error) {
	if !s.mu.TryLock() {
		return "", ErrSessionBusy
	}
	defer s.mu.Unlock()

	turns := s.state.Snapshot()
	if len(turns) == 0 || turns[len(turns)-1].Role == conversation.RoleAssistant {
		return "", ErrNothingToResume
	}

	return s.run(ctx, "")
}

func (s *Session) run(ctx context.Context, input string) (string, error) {
	a := s.agent

	ctx, cancel := timeout.With(ctx, a.timeoutConfig.Message)
	defer cancel()

	ctx, endTrace := a.tracer.StartTrace(ctx, "vaultagent.message",
		WithSessionID(s.id),
		WithTraceInput(input),
	)
	defer endTrace()
	ctx = WithSession(ctx, s.id)
	ctx = WithTracer(ctx, a.tracer)

	ctx = a.middlewares.OnMessageStart(ctx, input)
	output, err := s.loop(ctx)
	a.middlewares.OnMessageComplete(ctx, output, err)

	if err != nil {
		_ = a.tracer.SetSpanAttributes(ctx, map[string]any{"error": err.Error()})
	} else {
		_ = a.tracer.SetSpanOutput(ctx, output)
	}
	_ = a.tracer.SetTraceAttributes(ctx, map[string]any{"usage": s.Usage().Tokens})

	return output, err
}

// loop drives Inferring and ExecutingTools until a final answer or abort.
func (s *Session) loop(ctx context.Context) (string, error) {
	a := s.agent

	for round := 1; round <= a.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", s.abort(ctx, AbortCancelled, round-1, err)
		}

		roundCtx, endRound := a.tracer.StartSpan(WithRound(ctx, round), "vaultagent.round",
			WithSpanMetadata(map[string]any{"round": round, "max_rounds": a.maxRounds}),
		)
		s.logger.Debug("round started", "round", round, "max", a.maxRounds)
		s.emit(roundCtx, RoundStart(round, a.maxRounds))

		resp, err := s.infer(roundCtx)
		if err != nil {
			endRound()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", s.abort(ctx, AbortCancelled, round-1, ctxErr)
			}
			return "", s.abort(ctx, AbortModelUnavailable, round-1, err)
		}

		calls := ensureToolCallIDs(resp.ToolCalls)
		if len(calls) == 0 {
			if err := s.state.Append(Turn{Role: conversation.RoleAssistant, Content: resp.Content}); err != nil {
				endRound()
				return "", fmt.Errorf("append assistant turn: %w", err)
			}
			s.emit(roundCtx, FinalAnswer(resp.Content))
			s.logger.Info("message completed", "rounds", round, "output_length", len(resp.Content))
			endRound()
			return resp.Content, nil
		}

		if err := s.state.Append(Turn{Role: conversation.RoleAssistant, Content: resp.Content, ToolCalls: calls}); err != nil {
			endRound()
			return "", fmt.Errorf("append assistant turn: %w", err)
		}

		err = s.executeTools(roundCtx, calls)
		endRound()
		if err != nil {
			return "", s.abort(ctx, AbortCancelled, round, err)
		}
	}

	return "", s.abort(ctx, AbortRoundLimitExceeded, a.maxRounds,
		fmt.Errorf("%w: no final answer after %d rounds", ErrRoundLimitExceeded, a.maxRounds))
}

// infer makes exactly one model call with the full conversation.
func (s *Session) infer(ctx context.Context) (*providers.CompletionResponse, error) {
	a := s.agent
	req := s.buildRequest(ctx)

	callCtx := a.middlewares.OnModelCall(ctx, req)
	callCtx, cancel := timeout.With(callCtx, a.timeoutConfig.ModelCall)
	defer cancel()

	start := time.Now()
	resp, err := a.provider.Complete(callCtx, req)
	if err == nil && resp == nil {
		err = errors.New("provider returned no response")
	}
	if err != nil && !errors.Is(err, providers.ErrModelUnavailable) {
		err = fmt.Errorf("%w: %w", providers.ErrModelUnavailable, err)
	}
	a.middlewares.OnModelResponse(callCtx, resp, err)

	if err != nil {
		s.logGeneration(ctx, req, nil, nil, err, start)
		s.logger.Error("model call failed", "model", a.model, "error", err)
		return nil, err
	}

	s.usageMu.Lock()
	cost := s.usage.record(a.model, resp.Usage)
	s.usageMu.Unlock()
	s.logGeneration(ctx, req, resp, cost, nil, start)

	if a.loggingConfig.LogResponses {
		s.logger.Info("model response",
			"content", logging.Truncate(resp.Content, logTruncateLength),
			"tool_calls", len(resp.ToolCalls),
			"finish_reason", resp.FinishReason,
			"total_tokens", resp.Usage.TotalTokens)
	}
	return resp, nil
}

func (s *Session) buildRequest(ctx context.Context) providers.CompletionRequest {
	turns := s.state.Snapshot()
	messages := make([]providers.Message, 0, len(turns))
	for _, turn := range turns {
		msg := providers.Message{Content: turn.Content}
		switch turn.Role {
		case conversation.RoleUser:
			msg.Role = providers.RoleUser
		case conversation.RoleAssistant:
			msg.Role = providers.RoleAssistant
			msg.ToolCalls = turn.ToolCalls
		case conversation.RoleTool:
			msg.Role = providers.RoleTool
			msg.ToolCallID = turn.ToolCallID
		}
		messages = append(messages, msg)
	}

	return providers.CompletionRequest{
		Model:        s.agent.model,
		SystemPrompt: s.agent.systemPrompt(ctx),
		Messages:     messages,
		Tools:        s.toolDefs,
		Temperature:  s.agent.temperature,
		ToolChoice:   "auto",
		Metadata:     map[string]string{"session_id": s.id},
	}
}

// executeTools dispatches calls one at a time in the order given. When ctx
// ends, the remaining calls are answered with Cancelled results and the
// context error is returned.
func (s *Session) executeTools(ctx context.Context, calls []providers.ToolCall) error {
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			for _, rest := range calls[i:] {
				s.appendResult(ctx, rest, tools.ErrorResult(rest.ID, tools.KindCancelled, "not executed: "+err.Error()))
			}
			return err
		}
		s.appendResult(ctx, call, s.executeTool(ctx, call))
	}
	return nil
}

func (s *Session) executeTool(ctx context.Context, call providers.ToolCall) tools.ToolResult {
	a := s.agent

	toolCtx, endSpan := a.tracer.StartSpan(ctx, "vaultagent.tool",
		WithSpanType(SpanTypeTool),
		WithSpanInput(call.Arguments),
		WithSpanMetadata(map[string]any{"tool_name": call.Name, "call_id": call.ID}),
	)
	defer endSpan()

	s.emit(toolCtx, ToolCall(call.Name, call.ID, call.Arguments))
	s.logToolCall(call)

	var result tools.ToolResult
	if a.approvalConfig.requiresApproval(call.Name) {
		if approved, reason := s.requestApproval(toolCtx, call); !approved {
			result = tools.ErrorResult(call.ID, tools.KindRejected, reason)
			s.finishTool(toolCtx, call, result)
			return result
		}
	}

	toolCtx = a.middlewares.OnToolStart(toolCtx, call)
	result = s.registry.Dispatch(toolCtx, call)
	a.middlewares.OnToolComplete(toolCtx, call, result)

	s.finishTool(toolCtx, call, result)
	return result
}

func (s *Session) finishTool(ctx context.Context, call providers.ToolCall, result tools.ToolResult) {
	if result.IsError() {
		s.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "result", logging.Truncate(result.Payload, logTruncateLength))
		_ = s.agent.tracer.SetSpanAttributes(ctx, map[string]any{"status": string(result.Status)})
	} else {
		s.logger.Info("tool executed", "tool", call.Name, "call_id", call.ID)
	}
	_ = s.agent.tracer.SetSpanOutput(ctx, result.Payload)
	s.emit(ctx, ToolResult(call.Name, call.ID, result.IsError(), result.Payload))
}

func (s *Session) appendResult(ctx context.Context, call providers.ToolCall, result tools.ToolResult) {
	err := s.state.Append(Turn{
		Role:       conversation.RoleTool,
		Content:    result.Payload,
		ToolCallID: call.ID,
		IsError:    result.IsError(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to append tool result", "tool", call.Name, "call_id", call.ID, "error", err)
	}
}

func (s *Session) requestApproval(ctx context.Context, call providers.ToolCall) (bool, string) {
	a := s.agent
	req := ApprovalRequest{
		ToolName:    call.Name,
		Arguments:   call.Arguments,
		Description: tools.Description(call.Name),
		SessionID:   s.id,
		CallID:      call.ID,
	}
	s.emit(ctx, ApprovalRequired(req))

	deny := func(reason string) (bool, string) {
		s.emit(ctx, ApprovalDenied(call.Name, call.ID, reason))
		_ = a.tracer.LogEvent(ctx, "approval_denied", map[string]any{"tool_name": call.Name, "reason": reason})
		s.logger.Info("tool call rejected", "tool", call.Name, "call_id", call.ID, "reason", reason)
		return false, reason
	}

	if a.approvalConfig.Handler == nil {
		return deny("no approval handler configured")
	}

	approvalCtx, cancel := timeout.With(ctx, a.timeoutConfig.Approval)
	approved, err := a.approvalConfig.Handler(approvalCtx, req)
	cancel()
	if err != nil {
		return deny(fmt.Sprintf("approval failed: %v", err))
	}
	if !approved {
		return deny("tool execution rejected by user")
	}

	s.emit(ctx, ApprovalGranted(call.Name, call.ID))
	_ = a.tracer.LogEvent(ctx, "approval_granted", map[string]any{"tool_name": call.Name})
	return true, ""
}

func (s *Session) abort(ctx context.Context, reason AbortReason, rounds int, err error) error {
	abortErr := &AbortError{Reason: reason, Rounds: rounds, Err: err}
	s.logger.Warn("message aborted", "reason", reason, "rounds", rounds, "error", err)
	s.emit(ctx, Aborted(reason, err))
	return abortErr
}

func (s *Session) emit(ctx context.Context, event Event) {
	if s.agent.onEvent == nil {
		return
	}
	event.SessionID = s.id
	if round, ok := GetRound(ctx); ok {
		event.Round = round
	}
	s.agent.onEvent(event)
}

func (s *Session) logToolCall(call providers.ToolCall) {
	cfg := s.agent.loggingConfig
	if !cfg.LogToolCalls {
		s.logger.Debug("tool call", "tool", call.Name, "call_id", call.ID)
		return
	}
	var args any = call.Arguments
	if cfg.RedactSensitive {
		args = logging.Redact(call.Arguments)
	}
	s.logger.Info("tool call", "tool", call.Name, "call_id", call.ID, "arguments", args)
}

func (s *Session) logGeneration(ctx context.Context, req providers.CompletionRequest, resp *providers.CompletionResponse, cost *CostInfo, err error, start time.Time) {
	tracer := s.agent.tracer
	if isNoOpTracer(tracer) {
		return
	}

	gen := GenerationOptions{
		Name:  "vaultagent.generation",
		Model: req.Model,
		ModelParameters: map[string]any{
			"temperature": req.Temperature,
			"tool_choice": req.ToolChoice,
		},
		Input: map[string]any{
			"system_prompt": req.SystemPrompt,
			"messages":      req.Messages,
		},
		Metadata: map[string]any{
			"tools": len(req.Tools),
		},
		StartTime: start,
		EndTime:   time.Now(),
		Level:     LogLevelDefault,
	}
	if resp != nil {
		gen.Output = map[string]any{
			"content":       resp.Content,
			"tool_calls":    resp.ToolCalls,
			"finish_reason": resp.FinishReason,
		}
		usage := resp.Usage
		gen.Usage = &usage
		gen.Cost = cost
		if resp.FinishReason == providers.FinishReasonLength {
			gen.Level = LogLevelWarning
			gen.StatusMessage = "response truncated by the token limit"
		}
	}
	if err != nil {
		gen.Level = LogLevelError
		gen.StatusMessage = err.Error()
	}

	_ = tracer.LogGeneration(ctx, gen)
}

// ensureToolCallIDs returns a copy of calls where missing or repeated IDs
// are replaced with fresh ones, so every result can be paired.
func ensureToolCallIDs(calls []providers.ToolCall) []providers.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := slices.Clone(calls)
	used := make(map[string]struct{}, len(out))
	for i := range out {
		if _, dup := used[out[i].ID]; out[i].ID == "" || dup {
			out[i].ID = "call_" + uuid.NewString()
		}
		used[out[i].ID] = struct{}{}
	}
	return out
}
