package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// MockModel is a langchaingo model that answers locally. It backs every
// provider when CHATD_MODE=MOCK.
type MockModel struct {
	// ChunkSize is the size of each streamed increment.
	ChunkSize int
	// Delay is slept between increments.
	Delay time.Duration
}

// NewMockModel creates a new mock model.
func NewMockModel() *MockModel {
	return &MockModel{ChunkSize: 10, Delay: 20 * time.Millisecond}
}

// Ensure MockModel implements llms.Model interface.
var _ llms.Model = (*MockModel)(nil)

// GenerateContent returns a mock response, streaming it in chunks when a
// streaming func is set.
func (m *MockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	responseContent := m.generateMockResponse(messages, &opts)

	if opts.StreamingFunc != nil {
		for _, chunk := range splitIntoChunks(responseContent, m.ChunkSize) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.Delay):
			}
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    responseContent,
				StopReason: "stop",
			},
		},
	}, nil
}

// Call implements the single-prompt form of llms.Model.
func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// generateMockResponse generates a mock response based on the request.
func (m *MockModel) generateMockResponse(messages []llms.MessageContent, opts *llms.CallOptions) string {
	// If tools are provided, mention the first one
	if len(opts.Tools) > 0 && opts.Tools[0].Function != nil {
		return fmt.Sprintf("[MOCK] I would call tool '%s' to help with this request.", opts.Tools[0].Function.Name)
	}

	// Get the last user message
	var lastUserMessage string
	for i := len(messages) - 1; i >= 0 && lastUserMessage == ""; i-- {
		if messages[i].Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range messages[i].Parts {
			if text, ok := part.(llms.TextContent); ok {
				lastUserMessage += text.Text
			}
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the LLM client."
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func splitIntoChunks(s string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = len(s)
	}
	var chunks []string
	runes := []rune(s)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// truncate truncates a string to maxLen runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
