package domain

// StreamEvent is one frame sent to the client during a turn.
// Exactly one of Content, Done or Error is set.
type StreamEvent struct {
	Content   string `json:"content,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ContentEvent carries one increment.
func ContentEvent(increment string) StreamEvent {
	return StreamEvent{Content: increment}
}

// DoneEvent is the successful terminal frame.
func DoneEvent(messageID string, truncated bool) StreamEvent {
	return StreamEvent{Done: true, MessageID: messageID, Truncated: truncated}
}

// ErrorEvent is the failing terminal frame.
func ErrorEvent(kind ErrorKind, message string) StreamEvent {
	return StreamEvent{Error: message, Code: string(kind)}
}

// IsTerminal reports whether the frame ends the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Done || e.Error != ""
}
