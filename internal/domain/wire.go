package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessagePayload is the JSON shape of a chat message on the hub and the REST store.
type MessagePayload struct {
	ID          string   `json:"id,omitempty"`
	ChatID      string   `json:"chatId"`
	SenderID    string   `json:"senderId"`
	Content     string   `json:"content"`
	MediaURL    *string  `json:"mediaUrl,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	MessageType int      `json:"messageType"`
	CreatedDate string   `json:"createdDate"`
	IsRead      bool     `json:"isRead"`
}

// createdDate layouts accepted from servers, most precise first. Zone-less
// values are read as UTC.
var createdDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func ParseCreatedDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range createdDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: createdDate %q", ErrInvalidInput, s)
}

func FormatCreatedDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ToEvent validates the payload and converts it into an InboundEvent.
func (p MessagePayload) ToEvent() (InboundEvent, error) {
	if p.ChatID == "" {
		return InboundEvent{}, fmt.Errorf("%w: chatId is required", ErrInvalidInput)
	}
	if p.SenderID == "" {
		return InboundEvent{}, fmt.Errorf("%w: senderId is required", ErrInvalidInput)
	}

	created, err := ParseCreatedDate(p.CreatedDate)
	if err != nil {
		return InboundEvent{}, err
	}

	return InboundEvent{
		ID:          MessageID(p.ID),
		ChatID:      ChatID(p.ChatID),
		SenderID:    UserID(p.SenderID),
		Content:     p.Content,
		MediaURL:    p.MediaURL,
		Duration:    p.Duration,
		MessageType: MessageType(p.MessageType),
		CreatedDate: created,
		IsRead:      p.IsRead,
	}, nil
}

func PayloadFromEvent(evt InboundEvent) MessagePayload {
	return MessagePayload{
		ID:          string(evt.ID),
		ChatID:      string(evt.ChatID),
		SenderID:    string(evt.SenderID),
		Content:     evt.Content,
		MediaURL:    evt.MediaURL,
		Duration:    evt.Duration,
		MessageType: int(evt.MessageType),
		CreatedDate: FormatCreatedDate(evt.CreatedDate),
		IsRead:      evt.IsRead,
	}
}

// PayloadFromOutbound is the partial body written to the REST store.
func PayloadFromOutbound(msg *OutboundMessage) MessagePayload {
	return MessagePayload{
		ChatID:      string(msg.ChatID),
		SenderID:    string(msg.SenderID),
		Content:     msg.Content,
		MediaURL:    msg.MediaURL,
		Duration:    msg.Duration,
		MessageType: int(msg.MessageType),
		CreatedDate: FormatCreatedDate(msg.CreatedAt),
	}
}
