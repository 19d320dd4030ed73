package domain

import "time"

type ChatID string
type UserID string
type MessageID string

// ClientTempID identifies a message authored locally before the server confirmed it.
type ClientTempID string

// MessageType mirrors the integer message kind used on the wire.
type MessageType int

const (
	MessageText  MessageType = 0
	MessageImage MessageType = 1
	MessageVoice MessageType = 2
	MessageVideo MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageImage:
		return "image"
	case MessageVoice:
		return "voice"
	case MessageVideo:
		return "video"
	default:
		return "unknown"
	}
}

type DeliveryState int

const (
	DeliveryPending DeliveryState = iota
	DeliverySent
	DeliveryFailed
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliverySent:
		return "sent"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Timestamp = time.Time
