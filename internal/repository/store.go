// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"

	"github.com/xiaot623/chatd/internal/domain"
)

// Store defines the interface for data persistence.
// Lookups return nil, nil when the row does not exist.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error)
	UpdateConversation(ctx context.Context, conv *domain.Conversation) error
	DeleteConversation(ctx context.Context, conversationID string) error

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// Provider configuration operations
	CreateProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) error
	GetProviderConfig(ctx context.Context, configID string) (*domain.ProviderConfig, error)
	GetProviderConfigForProvider(ctx context.Context, userID, provider string) (*domain.ProviderConfig, error)
	ListProviderConfigs(ctx context.Context, userID string) ([]domain.ProviderConfig, error)
	UpdateProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) error
	DeleteProviderConfig(ctx context.Context, configID string) error
	ClearDefaultProviderConfigs(ctx context.Context, userID, exceptID string) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
