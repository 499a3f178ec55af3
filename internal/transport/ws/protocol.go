package ws

// Message types from client to server
const (
	TypeHello  = "hello"
	TypeChat   = "chat"
	TypeCancel = "cancel"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeContent  = "content"
	TypeDone     = "done"
	TypeError    = "error"
)

// Error codes that are not part of the domain taxonomy.
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeHelloRequired  = "hello_required"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type           string `json:"type"`
	Ts             int64  `json:"ts"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// HelloMessage is sent by the client to identify itself.
type HelloMessage struct {
	BaseMessage
	UserID string `json:"user_id"`
}

// HelloAckMessage confirms the hello.
type HelloAckMessage struct {
	BaseMessage
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

// ChatMessage starts a turn on a conversation.
type ChatMessage struct {
	BaseMessage
	Message     string   `json:"message,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// CancelMessage stops the turn in flight on a conversation.
type CancelMessage struct {
	BaseMessage
}

// ContentMessage carries one increment.
type ContentMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// DoneMessage ends a turn.
type DoneMessage struct {
	BaseMessage
	MessageID string `json:"message_id,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ErrorMessage reports a failed request or turn.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
