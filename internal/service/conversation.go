package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/chatd/internal/domain"
)

const (
	defaultConversationTitle = "New Chat"
	defaultListLimit         = 100
	maxListLimit             = 100
)

// ownedConversation loads a conversation and checks that userID owns it.
func (s *Service) ownedConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.NewError(domain.KindNotFound, "conversation %s not found", conversationID)
	}
	if conv.UserID != userID {
		return nil, domain.NewError(domain.KindForbidden, "conversation %s belongs to another user", conversationID)
	}
	return conv, nil
}

// CreateConversation creates a conversation. Without an explicit provider the
// user's default provider configuration is used.
func (s *Service) CreateConversation(ctx context.Context, userID string, req domain.CreateConversationRequest) (*domain.Conversation, error) {
	provider, model := req.Provider, req.Model
	if provider == "" {
		def, err := s.defaultProviderConfig(ctx, userID)
		if err != nil {
			return nil, err
		}
		if def == nil {
			return nil, domain.NewError(domain.KindInvalidRequest, "llm_provider is required")
		}
		provider = def.Provider
		if model == "" {
			model = def.Model
		}
	}

	model, err := s.adapters.Validate(provider, model)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultConversationTitle
	}

	conv := &domain.Conversation{
		ID:           "chat_" + uuid.New().String()[:8],
		UserID:       userID,
		Title:        title,
		Provider:     provider,
		Model:        model,
		Temperature:  clampTemperature(req.Temperature, domain.DefaultTemperature),
		MaxTokens:    clampMaxTokens(req.MaxTokens, domain.DefaultMaxTokens),
		SystemPrompt: req.SystemPrompt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// ListConversations lists the user's conversations with message counts.
func (s *Service) ListConversations(ctx context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	list, err := s.store.ListConversations(ctx, userID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return list, nil
}

// GetConversation returns a conversation with its transcript.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*domain.ConversationResponse, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return &domain.ConversationResponse{Conversation: *conv, Messages: messages}, nil
}

// UpdateConversation applies a partial update.
func (s *Service) UpdateConversation(ctx context.Context, userID, conversationID string, req domain.UpdateConversationRequest) (*domain.Conversation, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		if title := strings.TrimSpace(*req.Title); title != "" {
			conv.Title = title
		}
	}
	if req.Temperature != nil {
		conv.Temperature = clampTemperature(req.Temperature, conv.Temperature)
	}
	if req.MaxTokens != nil {
		conv.MaxTokens = clampMaxTokens(req.MaxTokens, conv.MaxTokens)
	}
	if req.SystemPrompt != nil {
		conv.SystemPrompt = *req.SystemPrompt
	}
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return conv, nil
}

// DeleteConversation cancels any turn in flight and deletes the conversation
// with its messages and trace.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	s.cancelActiveTurn(conversationID)
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func clampTemperature(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	t := *v
	if t < domain.MinTemperature {
		t = domain.MinTemperature
	}
	if t > domain.MaxTemperature {
		t = domain.MaxTemperature
	}
	return t
}

func clampMaxTokens(v *int, def int) int {
	if v == nil {
		return def
	}
	n := *v
	if n < domain.MinMaxTokens {
		n = domain.MinMaxTokens
	}
	if n > domain.MaxMaxTokens {
		n = domain.MaxMaxTokens
	}
	return n
}
