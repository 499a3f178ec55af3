package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xiaot623/chatd/internal/adapter/llm"
	"github.com/xiaot623/chatd/internal/config"
	"github.com/xiaot623/chatd/internal/domain"
	"github.com/xiaot623/chatd/internal/repository"
	"github.com/xiaot623/chatd/internal/secret"
	"github.com/xiaot623/chatd/internal/testutil"
	"github.com/xiaot623/chatd/internal/tools"
)

var (
	sealerOnce sync.Once
	sealer     *secret.Sealer
)

func testSealer(t *testing.T) *secret.Sealer {
	t.Helper()
	sealerOnce.Do(func() {
		s, err := secret.NewSealer("test-secret")
		if err != nil {
			t.Fatalf("NewSealer: %v", err)
		}
		sealer = s
	})
	return sealer
}

// scriptedAdapter replays chunks, then ends with err, io.EOF, or blocks until cancelled.
type scriptedAdapter struct {
	chunks []string
	err    error
	block  bool

	mu      sync.Mutex
	gotReq  *llm.Request
	streams []*scriptedStream
	closes  int
}

func (a *scriptedAdapter) Generate(ctx context.Context, req *llm.Request) (string, error) {
	a.mu.Lock()
	a.gotReq = req
	a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	return strings.Join(a.chunks, ""), nil
}

func (a *scriptedAdapter) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	s := &scriptedStream{ctx: ctx, chunks: a.chunks, err: a.err, block: a.block}
	a.mu.Lock()
	a.gotReq = req
	a.streams = append(a.streams, s)
	a.mu.Unlock()
	return s, nil
}

func (a *scriptedAdapter) Close() error {
	a.mu.Lock()
	a.closes++
	a.mu.Unlock()
	return nil
}

func (a *scriptedAdapter) closeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

func (a *scriptedAdapter) request() *llm.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gotReq
}

type scriptedStream struct {
	ctx    context.Context
	chunks []string
	err    error
	block  bool
	i      int

	mu     sync.Mutex
	closed bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.i < len(s.chunks) {
		c := s.chunks[s.i]
		s.i++
		return c, nil
	}
	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// fakeResolver validates against the real catalog and hands out adapter.
type fakeResolver struct {
	*llm.Registry
	adapter llm.Adapter

	mu       sync.Mutex
	calls    int
	lastCred *llm.Credential
}

func newFakeResolver(adapter llm.Adapter) *fakeResolver {
	return &fakeResolver{
		Registry: llm.NewRegistryWithFactory(llm.NewMockFactory(), false),
		adapter:  adapter,
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, provider, model string, cred *llm.Credential) (llm.Adapter, error) {
	f.mu.Lock()
	f.calls++
	f.lastCred = cred
	f.mu.Unlock()
	if _, err := f.Registry.Validate(provider, model); err != nil {
		return nil, err
	}
	return f.adapter, nil
}

func (f *fakeResolver) resolveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingSink collects frames. failAt makes the n-th Send (1-based) fail.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.StreamEvent
	failAt int
	onSend func(domain.StreamEvent)
	sends  int
}

var errClientGone = errors.New("client gone")

func (s *recordingSink) Send(event domain.StreamEvent) error {
	s.mu.Lock()
	s.sends++
	if s.failAt > 0 && s.sends >= s.failAt {
		s.mu.Unlock()
		return errClientGone
	}
	s.events = append(s.events, event)
	onSend := s.onSend
	s.mu.Unlock()
	if onSend != nil {
		onSend(event)
	}
	return nil
}

func (s *recordingSink) snapshot() []domain.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StreamEvent, len(s.events))
	copy(out, s.events)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		LLMTimeout:       10 * time.Second,
		PersistTimeout:   time.Second,
		StreamRatePerSec: 1000,
		StreamBurst:      1000,
	}
}

func newTestService(t *testing.T, resolver AdapterResolver) (*Service, *repository.SQLiteStore) {
	t.Helper()
	db := testutil.NewTestSQLiteStore(t)
	svc := New(db, resolver, tools.NewRegistry(tools.DefaultCatalog()), nil, testSealer(t), testConfig())
	return svc, db
}

func seedConversation(t *testing.T, db *repository.SQLiteStore, id, userID, provider, model string) *domain.Conversation {
	t.Helper()
	conv := &domain.Conversation{
		ID:          id,
		UserID:      userID,
		Title:       "Test",
		Provider:    provider,
		Model:       model,
		Temperature: domain.DefaultTemperature,
		MaxTokens:   domain.DefaultMaxTokens,
		CreatedAt:   time.Now(),
	}
	if err := db.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv
}

func seedMessage(t *testing.T, db *repository.SQLiteStore, conversationID string, role domain.Role, content string) {
	t.Helper()
	msg := &domain.Message{
		ID:             "msg_" + content,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := db.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
}

func assistantMessages(t *testing.T, db *repository.SQLiteStore, conversationID string) []domain.Message {
	t.Helper()
	messages, err := db.GetMessages(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var out []domain.Message
	for _, m := range messages {
		if m.Role == domain.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
