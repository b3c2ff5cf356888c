package vaultagent

import "time"

// EventType represents the type of session event
type EventType string

const (
	EventTypeRoundStart       EventType = "round_start"
	EventTypeToolCall         EventType = "tool_call"
	EventTypeToolResult       EventType = "tool_result"
	EventTypeFinalAnswer      EventType = "final_answer"
	EventTypeAborted          EventType = "aborted"
	EventTypeApprovalRequired EventType = "approval_required"
	EventTypeApprovalGranted  EventType = "approval_granted"
	EventTypeApprovalDenied   EventType = "approval_denied"
)

// Event is delivered to Config.OnEvent while a message is being handled.
type Event struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Round     int            `json:"round,omitempty"`
}

// EventHandler receives session events synchronously.
type EventHandler func(Event)

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// RoundStart creates a round start event
func RoundStart(round, maxRounds int) Event {
	return NewEvent(EventTypeRoundStart, map[string]any{
		"round":      round,
		"max_rounds": maxRounds,
	})
}

// ToolCall creates a tool call event
func ToolCall(name, callID string, arguments map[string]any) Event {
	return NewEvent(EventTypeToolCall, map[string]any{
		"tool_name": name,
		"call_id":   callID,
		"arguments": arguments,
	})
}

// ToolResult creates a tool result event
func ToolResult(name, callID string, isError bool, payload string) Event {
	return NewEvent(EventTypeToolResult, map[string]any{
		"tool_name": name,
		"call_id":   callID,
		"is_error":  isError,
		"payload":   payload,
	})
}

// FinalAnswer creates a final answer event
func FinalAnswer(response string) Event {
	return NewEvent(EventTypeFinalAnswer, map[string]any{
		"response": response,
	})
}

// Aborted creates an aborted event
func Aborted(reason AbortReason, err error) Event {
	return NewEvent(EventTypeAborted, map[string]any{
		"reason": string(reason),
		"error":  err.Error(),
	})
}

// ApprovalRequired creates an approval required event
func ApprovalRequired(request ApprovalRequest) Event {
	return NewEvent(EventTypeApprovalRequired, map[string]any{
		"tool_name":   request.ToolName,
		"arguments":   request.Arguments,
		"description": request.Description,
		"session_id":  request.SessionID,
		"call_id":     request.CallID,
	})
}

// ApprovalGranted creates an approval granted event
func ApprovalGranted(toolName, callID string) Event {
	return NewEvent(EventTypeApprovalGranted, map[string]any{
		"tool_name": toolName,
		"call_id":   callID,
	})
}

// ApprovalDenied creates an approval denied event
func ApprovalDenied(toolName, callID, reason string) Event {
	return NewEvent(EventTypeApprovalDenied, map[string]any{
		"tool_name": toolName,
		"call_id":   callID,
		"reason":    reason,
	})
}
