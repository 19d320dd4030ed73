package mocks

import (
	"context"
	"sync"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

// MockTokenProvider is a mock implementation of domain.TokenProvider
type MockTokenProvider struct {
	TokenFunc func(ctx context.Context) (string, error)
}

// Token mocks the Token method
func (m *MockTokenProvider) Token(ctx context.Context) (string, error) {
	if m.TokenFunc != nil {
		return m.TokenFunc(ctx)
	}
	return "test-token", nil
}

// MockPersistenceGateway is a mock implementation of domain.PersistenceGateway
type MockPersistenceGateway struct {
	SaveMessageFunc  func(ctx context.Context, msg *domain.OutboundMessage) error
	ListMessagesFunc func(ctx context.Context, chatID domain.ChatID) ([]domain.InboundEvent, error)

	mu    sync.Mutex
	saved []domain.OutboundMessage
}

// SaveMessage mocks the SaveMessage method
func (m *MockPersistenceGateway) SaveMessage(ctx context.Context, msg *domain.OutboundMessage) error {
	m.mu.Lock()
	m.saved = append(m.saved, *msg)
	m.mu.Unlock()

	if m.SaveMessageFunc != nil {
		return m.SaveMessageFunc(ctx, msg)
	}
	return nil
}

// ListMessages mocks the ListMessages method
func (m *MockPersistenceGateway) ListMessages(ctx context.Context, chatID domain.ChatID) ([]domain.InboundEvent, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, chatID)
	}
	return []domain.InboundEvent{}, nil
}

// Saved returns every message passed to SaveMessage.
func (m *MockPersistenceGateway) Saved() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboundMessage(nil), m.saved...)
}

// MockMessageStore is a mock implementation of domain.MessageStore
type MockMessageStore struct {
	AppendMessageFunc     func(ctx context.Context, evt *domain.InboundEvent) error
	GetMessagesByChatFunc func(ctx context.Context, chatID domain.ChatID, limit int) ([]*domain.InboundEvent, error)
}

// AppendMessage mocks the AppendMessage method
func (m *MockMessageStore) AppendMessage(ctx context.Context, evt *domain.InboundEvent) error {
	if m.AppendMessageFunc != nil {
		return m.AppendMessageFunc(ctx, evt)
	}
	return nil
}

// GetMessagesByChat mocks the GetMessagesByChat method
func (m *MockMessageStore) GetMessagesByChat(ctx context.Context, chatID domain.ChatID, limit int) ([]*domain.InboundEvent, error) {
	if m.GetMessagesByChatFunc != nil {
		return m.GetMessagesByChatFunc(ctx, chatID, limit)
	}
	return []*domain.InboundEvent{}, nil
}
