package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/storage/memory"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

func TestGetMessagesByChatReturnsLatest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()

	for i := 0; i < 5; i++ {
		err := store.AppendMessage(ctx, &domain.InboundEvent{
			ID:       domain.MessageID(fmt.Sprintf("m-%d", i)),
			ChatID:   "chat-1",
			SenderID: "u1",
			Content:  fmt.Sprintf("msg %d", i),
		})
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}
	_ = store.AppendMessage(ctx, &domain.InboundEvent{ID: "other", ChatID: "chat-2", SenderID: "u2"})

	msgs, err := store.GetMessagesByChat(ctx, "chat-1", 2)
	if err != nil {
		t.Fatalf("GetMessagesByChat failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m-3" || msgs[1].ID != "m-4" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	all, _ := store.GetMessagesByChat(ctx, "chat-1", 0)
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}

	all[0].Content = "changed"
	again, _ := store.GetMessagesByChat(ctx, "chat-1", 0)
	if again[0].Content != "msg 0" {
		t.Fatalf("store must hand out copies")
	}
}

func TestAppendMessageRejectsMissingAndDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()

	if err := store.AppendMessage(ctx, &domain.InboundEvent{ChatID: "chat-1"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for a missing id, got %v", err)
	}

	evt := &domain.InboundEvent{ID: "m-1", ChatID: "chat-1", Content: "hi"}
	if err := store.AppendMessage(ctx, evt); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := store.AppendMessage(ctx, &domain.InboundEvent{ID: "m-1", ChatID: "chat-2"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for a duplicate id, got %v", err)
	}

	msgs, _ := store.GetMessagesByChat(ctx, "chat-2", 0)
	if len(msgs) != 0 {
		t.Fatalf("rejected message was stored: %+v", msgs)
	}
}
