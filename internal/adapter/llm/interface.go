// Package llm provides the provider adapters behind a uniform interface.
package llm

import (
	"context"

	"github.com/xiaot623/chatd/internal/domain"
)

// Adapter is the capability surface of one upstream model API.
// Adapters hold no conversation state.
type Adapter interface {
	// Generate returns the complete response.
	Generate(ctx context.Context, req *Request) (string, error)

	// Stream starts a streaming response.
	Stream(ctx context.Context, req *Request) (Stream, error)

	// Close releases the vendor client. The adapter is unusable afterwards.
	Close() error
}

// Stream yields response increments in order.
// Recv returns io.EOF once the upstream finished normally. Any other error is a failure.
// A stream is finite and cannot be restarted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Request is a provider-neutral generation request.
type Request struct {
	Messages    []domain.Message
	Temperature float64
	MaxTokens   int
	System      string
	Tools       []domain.ToolDescriptor
}
