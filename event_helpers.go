package vaultagent

import (
	"slices"
	"sync"
)

// FilterEvents wraps next so it only receives events of the given types.
func FilterEvents(next EventHandler, types ...EventType) EventHandler {
	if len(types) == 0 {
		return next
	}
	return func(event Event) {
		if slices.Contains(types, event.Type) {
			next(event)
		}
	}
}

// MultiHandler fans an event out to every handler in order.
func MultiHandler(handlers ...EventHandler) EventHandler {
	return func(event Event) {
		for _, h := range handlers {
			if h != nil {
				h(event)
			}
		}
	}
}

// EventRecorder captures events for replay or inspection.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewEventRecorder creates a new recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Handle records event. Pass it as Config.OnEvent.
func (r *EventRecorder) Handle(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of recorded events.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the recorded event types in order.
func (r *EventRecorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
