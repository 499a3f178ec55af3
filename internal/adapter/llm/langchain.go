package llm

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/xiaot623/chatd/internal/domain"
)

// toolNameSeparator joins server and tool names in advertised function names.
const toolNameSeparator = "__"

var emptyToolSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// ModelAdapter adapts a langchaingo model to Adapter.
type ModelAdapter struct {
	provider string
	model    string
	llm      llms.Model

	closeOnce sync.Once
	closeErr  error
}

// Ensure ModelAdapter implements Adapter interface.
var _ Adapter = (*ModelAdapter)(nil)

// NewModelAdapter wraps m for provider and model.
func NewModelAdapter(provider, model string, m llms.Model) *ModelAdapter {
	return &ModelAdapter{provider: provider, model: model, llm: m}
}

// Generate returns the complete response.
func (a *ModelAdapter) Generate(ctx context.Context, req *Request) (string, error) {
	resp, err := a.llm.GenerateContent(ctx, a.messages(req), a.callOptions(req)...)
	if err != nil {
		return "", translateError(a.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewError(domain.KindUpstreamNetwork, "%s: empty response from model", a.provider)
	}
	return resp.Choices[0].Content, nil
}

// Stream starts the upstream call in a goroutine and hands increments over an
// unbuffered channel, so the upstream is only read as fast as Recv is called.
func (a *ModelAdapter) Stream(ctx context.Context, req *Request) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &chanStream{
		ch:     make(chan string),
		errc:   make(chan error, 1),
		cancel: cancel,
	}

	messages := a.messages(req)
	opts := a.callOptions(req)

	go func() {
		defer close(s.ch)

		streamed := false
		send := func(chunk string) error {
			select {
			case s.ch <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			return send(string(chunk))
		}))

		resp, err := a.llm.GenerateContent(ctx, messages, opts...)
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			s.errc <- translateError(a.provider, err)
			return
		}
		// Some backends answer without invoking the streaming callback.
		if !streamed && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
			if err := send(resp.Choices[0].Content); err != nil {
				s.errc <- err
				return
			}
		}
		s.errc <- nil
	}()

	return s, nil
}

// Close closes the underlying model when it holds a client connection.
// Streams still running see their requests fail.
func (a *ModelAdapter) Close() error {
	a.closeOnce.Do(func() {
		if c, ok := a.llm.(io.Closer); ok {
			a.closeErr = c.Close()
		}
	})
	return a.closeErr
}

func (a *ModelAdapter) messages(req *Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case domain.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case domain.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		case domain.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		}
	}
	return messages
}

func (a *ModelAdapter) callOptions(req *Request) []llms.CallOption {
	opts := make([]llms.CallOption, 0, 4)
	opts = append(opts, llms.WithModel(a.model))
	opts = append(opts, llms.WithTemperature(req.Temperature))
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toolDefinitions(req.Tools)))
	}
	return opts
}

func toolDefinitions(descriptors []domain.ToolDescriptor) []llms.Tool {
	tools := make([]llms.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		params := d.Parameters
		if len(params) == 0 {
			params = emptyToolSchema
		}
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Server + toolNameSeparator + d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// chanStream is the consumer side of a streaming goroutine.
type chanStream struct {
	ch     chan string
	errc   chan error
	cancel context.CancelFunc
	err    error
}

func (s *chanStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if chunk, ok := <-s.ch; ok {
		return chunk, nil
	}
	s.err = <-s.errc
	if s.err == nil {
		s.err = io.EOF
	}
	return "", s.err
}

func (s *chanStream) Close() error {
	s.cancel()
	return nil
}
