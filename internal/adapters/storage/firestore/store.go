package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (CHATHUB_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// chats/{chatId}/messages/{messageId}

func (s *Store) messagesCol(chatID domain.ChatID) *firestore.CollectionRef {
	return s.client.Collection("chats").Doc(string(chatID)).Collection("messages")
}

type messageDoc struct {
	ChatID      string    `firestore:"chat_id"`
	SenderID    string    `firestore:"sender_id"`
	Content     string    `firestore:"content"`
	MediaURL    *string   `firestore:"media_url"`
	Duration    *float64  `firestore:"duration"`
	MessageType int       `firestore:"message_type"`
	CreatedAt   time.Time `firestore:"created_at"`
	IsRead      bool      `firestore:"is_read"`
}

// AppendMessage stores evt under its id; the id must be set.
func (s *Store) AppendMessage(ctx context.Context, evt *domain.InboundEvent) error {
	if evt.ID == "" {
		return domain.NewInvalidInputError("message id is required")
	}

	doc := messageDoc{
		ChatID:      string(evt.ChatID),
		SenderID:    string(evt.SenderID),
		Content:     evt.Content,
		MediaURL:    evt.MediaURL,
		Duration:    evt.Duration,
		MessageType: int(evt.MessageType),
		CreatedAt:   evt.CreatedDate,
		IsRead:      evt.IsRead,
	}

	_, err := s.messagesCol(evt.ChatID).Doc(string(evt.ID)).Create(ctx, doc)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.NewInvalidInputError(fmt.Sprintf("message %s already exists", evt.ID))
		}
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesByChat returns the latest limit messages, oldest first.
func (s *Store) GetMessagesByChat(ctx context.Context, chatID domain.ChatID, limit int) ([]*domain.InboundEvent, error) {
	q := s.messagesCol(chatID).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.InboundEvent
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore GetMessagesByChat: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		out = append(out, &domain.InboundEvent{
			ID:          domain.MessageID(snap.Ref.ID),
			ChatID:      chatID,
			SenderID:    domain.UserID(doc.SenderID),
			Content:     doc.Content,
			MediaURL:    doc.MediaURL,
			Duration:    doc.Duration,
			MessageType: domain.MessageType(doc.MessageType),
			CreatedDate: doc.CreatedAt,
			IsRead:      doc.IsRead,
		})
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
