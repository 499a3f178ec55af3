package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/chatd/internal/domain"
)

// recordEvent records a turn trace event to the store.
func (s *Service) recordEvent(ctx context.Context, conversationID, turnID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:        "evt_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		TurnID:         turnID,
		Ts:             time.Now().UnixMilli(),
		Type:           eventType,
		Payload:        payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// GetEvents returns the turn trace of a conversation.
func (s *Service) GetEvents(ctx context.Context, userID, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, conversationID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}
