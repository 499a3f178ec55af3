package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xiaot623/chatd/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func createConversation(t *testing.T, store *SQLiteStore, id, userID string) *domain.Conversation {
	t.Helper()
	conv := &domain.Conversation{
		ID:          id,
		UserID:      userID,
		Title:       "Chat " + id,
		Provider:    "openai",
		Model:       "gpt-4",
		Temperature: domain.DefaultTemperature,
		MaxTokens:   domain.DefaultMaxTokens,
		CreatedAt:   time.Now(),
	}
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestSQLiteStoreConversation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	conv := createConversation(t, store, "c1", "u1")

	got, err := store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got == nil || got.UserID != "u1" || got.Model != "gpt-4" || got.UpdatedAt != nil {
		t.Fatalf("unexpected conversation: %+v", got)
	}

	conv.Title = "Renamed"
	conv.SystemPrompt = "Be brief."
	conv.Temperature = 1.2
	if err := store.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}
	got, err = store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Title != "Renamed" || got.SystemPrompt != "Be brief." || got.Temperature != 1.2 || got.UpdatedAt == nil {
		t.Fatalf("update not applied: %+v", got)
	}

	missing, err := store.GetConversation(ctx, "nope")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing conversation, got %+v", missing)
	}
}

func TestSQLiteStoreMessagesPreserveOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createConversation(t, store, "c1", "u1")

	// Same timestamp for every message: insertion order must break the tie.
	ts := time.Now()
	for i := 0; i < 5; i++ {
		msg := &domain.Message{
			ID:             fmt.Sprintf("m%d", 9-i),
			ConversationID: "c1",
			Role:           domain.RoleUser,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      ts,
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.Content != fmt.Sprintf("message %d", i) {
			t.Fatalf("message %d out of order: %q", i, msg.Content)
		}
	}

	conv, err := store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.UpdatedAt == nil {
		t.Fatalf("expected updated_at to be set after a message")
	}
}

func TestSQLiteStoreMessageMetadata(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createConversation(t, store, "c1", "u1")
	msg := &domain.Message{
		ID:             "m1",
		ConversationID: "c1",
		Role:           domain.RoleAssistant,
		Content:        "partial",
		Metadata:       json.RawMessage(`{"truncated":true}`),
		CreatedAt:      time.Now(),
	}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	messages, err := store.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || string(messages[0].Metadata) != `{"truncated":true}` {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestSQLiteStoreMessageRequiresConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.CreateMessage(context.Background(), &domain.Message{
		ID:             "m1",
		ConversationID: "missing",
		Role:           domain.RoleUser,
		Content:        "hi",
		CreatedAt:      time.Now(),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteStoreListConversations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createConversation(t, store, "c1", "u1")
	createConversation(t, store, "c2", "u1")
	createConversation(t, store, "c3", "u2")

	if err := store.CreateMessage(ctx, &domain.Message{
		ID: "m1", ConversationID: "c1", Role: domain.RoleUser, Content: "hi", CreatedAt: time.Now().Add(time.Second),
	}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	list, err := store.ListConversations(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != "c1" || list[0].MessageCount != 1 || list[1].MessageCount != 0 {
		t.Fatalf("unexpected listing: %+v", list)
	}

	page, err := store.ListConversations(ctx, "u1", 1, 1)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "c2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSQLiteStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createConversation(t, store, "c1", "u1")
	if err := store.CreateMessage(ctx, &domain.Message{
		ID: "m1", ConversationID: "c1", Role: domain.RoleUser, Content: "hi", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	if err := store.CreateEvent(ctx, &domain.Event{
		EventID: "e1", ConversationID: "c1", TurnID: "t1", Ts: time.Now().UnixMilli(), Type: domain.EventTypeTurnStarted,
	}); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	if err := store.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	messages, err := store.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	events, err := store.GetEvents(ctx, "c1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(messages) != 0 || len(events) != 0 {
		t.Fatalf("expected cascade delete, got %d messages %d events", len(messages), len(events))
	}
}

func TestSQLiteStoreProviderConfigs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	cfg := &domain.ProviderConfig{
		ID:           "p1",
		UserID:       "u1",
		Provider:     "openai",
		EncryptedKey: "ENC:abc",
		Model:        "gpt-4",
		IsDefault:    true,
		Settings:     json.RawMessage(`{"base_url":"http://localhost:9999/v1"}`),
		CreatedAt:    time.Now(),
	}
	if err := store.CreateProviderConfig(ctx, cfg); err != nil {
		t.Fatalf("CreateProviderConfig failed: %v", err)
	}

	dup := *cfg
	dup.ID = "p2"
	if err := store.CreateProviderConfig(ctx, &dup); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate provider, got %v", err)
	}

	got, err := store.GetProviderConfigForProvider(ctx, "u1", "openai")
	if err != nil {
		t.Fatalf("GetProviderConfigForProvider failed: %v", err)
	}
	if got == nil || !got.HasAPIKey() || !got.IsDefault || got.ParseSettings().BaseURL != "http://localhost:9999/v1" {
		t.Fatalf("unexpected config: %+v", got)
	}

	other := &domain.ProviderConfig{ID: "p3", UserID: "u1", Provider: "groq", Model: "gemma-7b-it", IsDefault: true, CreatedAt: time.Now()}
	if err := store.CreateProviderConfig(ctx, other); err != nil {
		t.Fatalf("CreateProviderConfig failed: %v", err)
	}
	if err := store.ClearDefaultProviderConfigs(ctx, "u1", "p3"); err != nil {
		t.Fatalf("ClearDefaultProviderConfigs failed: %v", err)
	}

	configs, err := store.ListProviderConfigs(ctx, "u1")
	if err != nil {
		t.Fatalf("ListProviderConfigs failed: %v", err)
	}
	if len(configs) != 2 || configs[0].IsDefault || !configs[1].IsDefault || configs[1].HasAPIKey() {
		t.Fatalf("unexpected configs: %+v", configs)
	}

	got.Model = "gpt-4-turbo"
	got.EncryptedKey = ""
	if err := store.UpdateProviderConfig(ctx, got); err != nil {
		t.Fatalf("UpdateProviderConfig failed: %v", err)
	}
	got, err = store.GetProviderConfig(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProviderConfig failed: %v", err)
	}
	if got.Model != "gpt-4-turbo" || got.HasAPIKey() || got.UpdatedAt == nil {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := store.DeleteProviderConfig(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProviderConfig failed: %v", err)
	}
	got, err = store.GetProviderConfig(ctx, "p1")
	if err != nil || got != nil {
		t.Fatalf("expected deleted config, got %+v, %v", got, err)
	}
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	createConversation(t, store, "c1", "u1")
	base := time.Now().UnixMilli()
	types := []domain.EventType{domain.EventTypeTurnStarted, domain.EventTypeTurnCompleted}
	for i, typ := range types {
		event := &domain.Event{
			EventID:        fmt.Sprintf("e%d", i),
			ConversationID: "c1",
			TurnID:         "t1",
			Ts:             base + int64(i),
			Type:           typ,
			Payload:        json.RawMessage(`{"provider":"openai"}`),
		}
		if err := store.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	events, err := store.GetEvents(ctx, "c1", 0, []string{}, 10)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 2 || events[0].Type != domain.EventTypeTurnStarted {
		t.Fatalf("unexpected events: %+v", events)
	}

	completed, err := store.GetEvents(ctx, "c1", 0, []string{string(domain.EventTypeTurnCompleted)}, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(completed) != 1 || completed[0].EventID != "e1" {
		t.Fatalf("unexpected filtered events: %+v", completed)
	}

	after, err := store.GetEvents(ctx, "c1", base, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("expected 1 event after ts, got %d", len(after))
	}
}
