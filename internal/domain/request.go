package domain

import "encoding/json"

// CreateConversationRequest creates a conversation.
type CreateConversationRequest struct {
	Title        string   `json:"title"`
	Provider     string   `json:"llm_provider"`
	Model        string   `json:"model_name"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// UpdateConversationRequest carries the mutable fields of a conversation.
type UpdateConversationRequest struct {
	Title        *string  `json:"title,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
}

// ConversationResponse is a conversation with its transcript.
type ConversationResponse struct {
	Conversation
	Messages []Message `json:"messages"`
}

// CreateMessageRequest appends a message to a conversation.
type CreateMessageRequest struct {
	Role     Role            `json:"role"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"message_metadata,omitempty"`
}

// TurnRequest starts a turn. Message, when set, is appended as a user message first.
type TurnRequest struct {
	Message     string   `json:"message,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// TurnResult is the outcome of a non-streaming turn.
type TurnResult struct {
	TurnID  string   `json:"turn_id"`
	Message *Message `json:"message"`
	Content string   `json:"content"`
	Done    bool     `json:"done"`
}

// ProviderConfigRequest creates or updates a provider configuration.
type ProviderConfigRequest struct {
	Provider  string          `json:"provider,omitempty"`
	Model     *string         `json:"model_name,omitempty"`
	APIKey    *string         `json:"api_key,omitempty"`
	IsDefault *bool           `json:"is_default,omitempty"`
	Settings  json.RawMessage `json:"config_data,omitempty"`
}

// ProviderConfigResponse never exposes the key itself.
type ProviderConfigResponse struct {
	ProviderConfig
	HasAPIKey bool `json:"has_api_key"`
}

// ProviderConfigTestResult is the outcome of a credential check.
type ProviderConfigTestResult struct {
	Status  string `json:"status"` // success or error
	Message string `json:"message"`
}

// TurnEventPayload is the payload of turn trace events.
type TurnEventPayload struct {
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Tools      int       `json:"tools,omitempty"`
	Increments int       `json:"increments,omitempty"`
	LatencyMs  int64     `json:"latency_ms,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}
