package domain

// OutboundMessage is a message authored locally, shown before the server confirms it.
type OutboundMessage struct {
	ClientTempID ClientTempID
	ChatID       ChatID
	SenderID     UserID
	Content      string
	MediaURL     *string
	Duration     *float64
	MessageType  MessageType
	CreatedAt    Timestamp // client clock

	DeliveryState DeliveryState
}

// InboundEvent is a message pushed by the hub, already stamped by the server.
type InboundEvent struct {
	ID          MessageID // empty when the hub does not expose one
	ChatID      ChatID
	SenderID    UserID
	Content     string
	MediaURL    *string
	Duration    *float64
	MessageType MessageType
	CreatedDate Timestamp // server clock
	IsRead      bool
}

// DisplayedMessage is one row of a conversation timeline. Exactly one of
// Optimistic and Confirmed is set.
type DisplayedMessage struct {
	Optimistic *OutboundMessage
	Confirmed  *InboundEvent
}

func (m DisplayedMessage) IsConfirmed() bool {
	return m.Confirmed != nil
}

// DeliveryState reports Sent for confirmed rows.
func (m DisplayedMessage) DeliveryState() DeliveryState {
	if m.Confirmed != nil {
		return DeliverySent
	}
	return m.Optimistic.DeliveryState
}

func (m DisplayedMessage) SenderID() UserID {
	if m.Confirmed != nil {
		return m.Confirmed.SenderID
	}
	return m.Optimistic.SenderID
}

func (m DisplayedMessage) Content() string {
	if m.Confirmed != nil {
		return m.Confirmed.Content
	}
	return m.Optimistic.Content
}

func (m DisplayedMessage) MessageType() MessageType {
	if m.Confirmed != nil {
		return m.Confirmed.MessageType
	}
	return m.Optimistic.MessageType
}

func (m DisplayedMessage) MediaURL() *string {
	if m.Confirmed != nil {
		return m.Confirmed.MediaURL
	}
	return m.Optimistic.MediaURL
}

// Timestamp is the server time for confirmed rows and the client time otherwise.
func (m DisplayedMessage) Timestamp() Timestamp {
	if m.Confirmed != nil {
		return m.Confirmed.CreatedDate
	}
	return m.Optimistic.CreatedAt
}
