// Package domain defines the core domain models for chatd.
package domain

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// TurnState is a state of the conversation-turn state machine.
type TurnState string

const (
	TurnStateIdle            TurnState = "IDLE"
	TurnStateHistoryLoaded   TurnState = "HISTORY_LOADED"
	TurnStateAdapterResolved TurnState = "ADAPTER_RESOLVED"
	TurnStateStreaming       TurnState = "STREAMING"
	TurnStateCompleted       TurnState = "COMPLETED"
	TurnStateFailed          TurnState = "FAILED"
	TurnStateCancelled       TurnState = "CANCELLED"
)

// EventType represents the type of a turn trace event.
type EventType string

const (
	EventTypeTurnStarted   EventType = "turn_started"
	EventTypeTurnCompleted EventType = "turn_completed"
	EventTypeTurnFailed    EventType = "turn_failed"
	EventTypeTurnCancelled EventType = "turn_cancelled"
)

// FinishReason records why an assistant message ended.
type FinishReason string

const (
	FinishReasonStop               FinishReason = "stop"
	FinishReasonClientDisconnected FinishReason = "client_disconnected"
	FinishReasonCancelled          FinishReason = "cancelled"
	FinishReasonUpstreamError      FinishReason = "upstream_error"
)

// Sampling bounds and defaults for a conversation.
const (
	DefaultTemperature = 0.7
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	DefaultMaxTokens   = 1000
	MinMaxTokens       = 1
	MaxMaxTokens       = 4000
)
