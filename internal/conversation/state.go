// Package conversation holds the append-only turn log of a session.
package conversation

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/darkostanimirovic/vaultagent/providers"
)

var (
	ErrInvalidTurn          = errors.New("conversation: invalid turn")
	ErrPendingToolCalls     = errors.New("conversation: tool calls are still awaiting results")
	ErrUnexpectedToolResult = errors.New("conversation: tool result does not answer a pending call")
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one immutable entry of the conversation.
type Turn struct {
	Role       Role                 `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	IsError    bool                 `json:"is_error,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// State is the ordered turn log. Turns are only ever appended; Reset is
// the single way to remove them.
//
// Append enforces the tool-call pairing rules: every tool turn answers a
// call from the latest assistant turn, and no user or assistant turn may
// follow until every such call has been answered.
type State struct {
	mu      sync.RWMutex
	turns   []Turn
	pending []string
}

// New creates an empty state.
func New() *State {
	return &State{}
}

// Append validates turn and adds it to the log.
func (s *State) Append(turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch turn.Role {
	case RoleUser:
		if len(turn.ToolCalls) > 0 || turn.ToolCallID != "" {
			return fmt.Errorf("%w: user turns carry no tool data", ErrInvalidTurn)
		}
		if len(s.pending) > 0 {
			return fmt.Errorf("%w: %v", ErrPendingToolCalls, s.pending)
		}

	case RoleAssistant:
		if turn.ToolCallID != "" {
			return fmt.Errorf("%w: assistant turns cannot answer tool calls", ErrInvalidTurn)
		}
		if len(s.pending) > 0 {
			return fmt.Errorf("%w: %v", ErrPendingToolCalls, s.pending)
		}
		seen := make(map[string]struct{}, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			if call.ID == "" {
				return fmt.Errorf("%w: tool call %q has no id", ErrInvalidTurn, call.Name)
			}
			if _, dup := seen[call.ID]; dup {
				return fmt.Errorf("%w: duplicate tool call id %q", ErrInvalidTurn, call.ID)
			}
			seen[call.ID] = struct{}{}
		}

	case RoleTool:
		idx := slices.Index(s.pending, turn.ToolCallID)
		if turn.ToolCallID == "" || idx < 0 {
			return fmt.Errorf("%w: %q", ErrUnexpectedToolResult, turn.ToolCallID)
		}
		if len(turn.ToolCalls) > 0 {
			return fmt.Errorf("%w: tool turns cannot request tool calls", ErrInvalidTurn)
		}
		s.pending = slices.Delete(s.pending, idx, idx+1)

	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, turn.Role)
	}

	if turn.Role == RoleAssistant {
		for _, call := range turn.ToolCalls {
			s.pending = append(s.pending, call.ID)
		}
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	turn.ToolCalls = cloneCalls(turn.ToolCalls)
	s.turns = append(s.turns, turn)
	return nil
}

// Snapshot returns a copy of every turn in order.
func (s *State) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Turn, len(s.turns))
	for i, turn := range s.turns {
		turn.ToolCalls = cloneCalls(turn.ToolCalls)
		out[i] = turn
	}
	return out
}

// Reset clears the log back to empty.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.pending = nil
}

// Len returns the number of turns.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Pending returns the ids of tool calls still awaiting a result, in the
// order the model requested them.
func (s *State) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pending)
}

// cloneCalls copies calls down to their argument values so stored turns
// share nothing with the caller.
func cloneCalls(calls []providers.ToolCall) []providers.ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]providers.ToolCall, len(calls))
	for i, call := range calls {
		if call.Arguments != nil {
			call.Arguments = cloneArgs(call.Arguments)
		}
		out[i] = call
	}
	return out
}

func cloneArgs(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneArgs(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
