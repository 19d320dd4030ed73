package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

// MessageStore keeps chat history in process. Message ids are unique across
// chats, like the primary key of the postgres backend.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.ChatID][]*domain.InboundEvent
	ids      map[domain.MessageID]struct{}
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[domain.ChatID][]*domain.InboundEvent),
		ids:      make(map[domain.MessageID]struct{}),
	}
}

func (s *MessageStore) AppendMessage(ctx context.Context, evt *domain.InboundEvent) error {
	if evt.ID == "" {
		return domain.NewInvalidInputError("message id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[evt.ID]; dup {
		return domain.NewInvalidInputError(fmt.Sprintf("message %s already stored", evt.ID))
	}
	s.ids[evt.ID] = struct{}{}

	stored := *evt
	s.messages[evt.ChatID] = append(s.messages[evt.ChatID], &stored)
	return nil
}

// GetMessagesByChat returns the latest limit messages in insertion order.
func (s *MessageStore) GetMessagesByChat(ctx context.Context, chatID domain.ChatID, limit int) ([]*domain.InboundEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*domain.InboundEvent, len(msgs))
	for i, m := range msgs {
		c := *m
		out[i] = &c
	}
	return out, nil
}
