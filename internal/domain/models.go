package domain

import (
	"encoding/json"
	"time"
)

// Conversation is a persisted chat session owned by one user.
type Conversation struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Provider     string     `json:"llm_provider"`
	Model        string     `json:"model_name"`
	Temperature  float64    `json:"temperature"`
	MaxTokens    int        `json:"max_tokens"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ConversationSummary is a list entry for a user's conversations.
type ConversationSummary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Provider     string     `json:"llm_provider"`
	Model        string     `json:"model_name"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	MessageCount int        `json:"message_count"`
}

// Message is one entry of a conversation transcript.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"chat_id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"message_metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AssistantMetadata is stored on assistant messages written by the orchestrator.
type AssistantMetadata struct {
	TurnID       string       `json:"turn_id"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	Truncated    bool         `json:"truncated"`
	FinishReason FinishReason `json:"finish_reason"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	Increments   int          `json:"increments,omitempty"`
	LatencyMs    int64        `json:"latency_ms"`
}

// ProviderConfig is a user's credential and defaults for one provider.
type ProviderConfig struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Provider     string          `json:"provider"`
	EncryptedKey string          `json:"-"`
	Model        string          `json:"model_name"`
	IsDefault    bool            `json:"is_default"`
	Settings     json.RawMessage `json:"config_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// HasAPIKey reports whether an encrypted key is stored.
func (c *ProviderConfig) HasAPIKey() bool {
	return c.EncryptedKey != ""
}

// ProviderSettings are the keys of ProviderConfig.Settings understood by adapters.
type ProviderSettings struct {
	BaseURL string `json:"base_url,omitempty"`
}

// ParseSettings decodes the known keys of the settings blob. Unknown keys are ignored.
func (c *ProviderConfig) ParseSettings() ProviderSettings {
	var s ProviderSettings
	if len(c.Settings) > 0 {
		_ = json.Unmarshal(c.Settings, &s)
	}
	return s
}

// ProviderInfo is one entry of the static provider catalog.
type ProviderInfo struct {
	Provider       string   `json:"provider"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Models         []string `json:"models"`
	DefaultModel   string   `json:"default_model"`
	RequiresAPIKey bool     `json:"requires_api_key"`
}

// SupportsModel reports whether model is listed for the provider.
func (p ProviderInfo) SupportsModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Event represents a turn trace event.
type Event struct {
	EventID        string          `json:"event_id"`
	ConversationID string          `json:"chat_id"`
	TurnID         string          `json:"turn_id"`
	Ts             int64           `json:"ts"` // Unix milliseconds
	Type           EventType       `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}
