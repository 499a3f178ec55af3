package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/chatd/internal/domain"
)

// GetMessages returns the transcript of a conversation in creation order.
func (s *Service) GetMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// AddMessage appends a message to a conversation.
func (s *Service) AddMessage(ctx context.Context, userID, conversationID string, req domain.CreateMessageRequest) (*domain.Message, error) {
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	if !req.Role.Valid() {
		return nil, domain.NewError(domain.KindInvalidRequest, "invalid role %q", req.Role)
	}
	if req.Content == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "content is required")
	}
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.saveMessage(ctx, conversationID, req.Role, req.Content, req.Metadata)
}

// saveMessage writes one immutable transcript entry.
func (s *Service) saveMessage(ctx context.Context, conversationID string, role domain.Role, content string, metadata json.RawMessage) (*domain.Message, error) {
	msg := &domain.Message{
		ID:             "msg_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}
