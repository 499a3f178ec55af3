package llm

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays scripted chunks through the streaming func.
type fakeModel struct {
	mu       sync.Mutex
	chunks   []string
	err      error
	gotMsgs  []llms.MessageContent
	gotOpts  llms.CallOptions
	released chan struct{}
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	f.mu.Lock()
	f.gotMsgs = messages
	f.gotOpts = opts
	f.mu.Unlock()

	content := ""
	for _, c := range f.chunks {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				if f.released != nil {
					close(f.released)
				}
				return nil, err
			}
		}
		content += c
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// connModel holds a background goroutine until closed, like a vendor client
// keeping its connection pool alive.
type connModel struct {
	fakeModel
	done   chan struct{}
	closed int
}

func newConnModel() *connModel {
	m := &connModel{done: make(chan struct{})}
	go func() { <-m.done }()
	return m
}

func (m *connModel) Close() error {
	m.closed++
	if m.closed == 1 {
		close(m.done)
	}
	return nil
}
