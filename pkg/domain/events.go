package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventScreenView   EventType = "screen_view"
	EventUserInput    EventType = "user_input"
	EventError        EventType = "error"
	EventAPICall      EventType = "api_call"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

// SessionEvent is emitted when a session is created or removed.
type SessionEvent struct {
	EventBase
	MSISDN    string        `json:"msisdn,omitempty"`
	ShortCode string        `json:"shortCode,omitempty"`
	Flow      string        `json:"flow,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// ScreenEvent is emitted every time a screen is rendered.
type ScreenEvent struct {
	EventBase
	Flow     string `json:"flow"`
	ScreenID string `json:"screenId"`
}

// InputEvent is emitted for every user answer.
type InputEvent struct {
	EventBase
	Flow     string `json:"flow"`
	ScreenID string `json:"screenId"`
	Input    string `json:"input"`
}

// ErrorEvent is emitted for every fault envelope.
type ErrorEvent struct {
	EventBase
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// APICallEvent is emitted for every helper invocation.
type APICallEvent struct {
	EventBase
	Endpoint string        `json:"endpoint"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
}

// LifecycleHooks defines callbacks for engine observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnSessionStart func(context.Context, *SessionEvent)
	OnSessionEnd   func(context.Context, *SessionEvent)
	OnScreenView   func(context.Context, *ScreenEvent)
	OnUserInput    func(context.Context, *InputEvent)
	OnError        func(context.Context, *ErrorEvent)
	OnAPICall      func(context.Context, *APICallEvent)
}

// Merge returns hooks that invoke h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSessionStart: chain(h.OnSessionStart, other.OnSessionStart),
		OnSessionEnd:   chain(h.OnSessionEnd, other.OnSessionEnd),
		OnScreenView:   chain(h.OnScreenView, other.OnScreenView),
		OnUserInput:    chain(h.OnUserInput, other.OnUserInput),
		OnError:        chain(h.OnError, other.OnError),
		OnAPICall:      chain(h.OnAPICall, other.OnAPICall),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
