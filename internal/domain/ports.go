package domain

import (
	"context"
	"encoding/json"
)

// TokenProvider supplies the bearer credential. An empty string means no
// credential is available.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// EventHandler receives the raw arguments of a hub invocation.
type EventHandler func(args []json.RawMessage)

// Transport is one connection to the real-time hub. Close handlers receive
// nil when the connection ended cleanly and the cause otherwise; they are
// never called for a transport whose Start failed.
type Transport interface {
	Start(ctx context.Context) error
	Invoke(ctx context.Context, method string, args ...any) error
	On(event string, handler EventHandler)
	OnClose(handler func(err error))
	Stop(ctx context.Context) error
}

// TransportFactory builds a fresh, unstarted transport for a chat.
type TransportFactory interface {
	NewTransport(chatID ChatID, tokens TokenProvider) Transport
}

// PersistenceGateway is the REST store behind the live channel. Writes are
// best-effort.
type PersistenceGateway interface {
	SaveMessage(ctx context.Context, msg *OutboundMessage) error
	ListMessages(ctx context.Context, chatID ChatID) ([]InboundEvent, error)
}

// MessageStore defines the hub-side persistence of chat messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, evt *InboundEvent) error
	GetMessagesByChat(ctx context.Context, chatID ChatID, limit int) ([]*InboundEvent, error)
}
