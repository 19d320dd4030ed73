// Package relay is the server side of the chat hub: it keeps the live
// connections of each chat room, fans SendMessage invocations out as
// ReceiveMessage events and backs the REST message endpoints.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

const (
	SendMessageMethod    = "SendMessage"
	ReceiveMessageMethod = "ReceiveMessage"

	DefaultHistoryLimit = 200
)

var ErrUnknownMethod = errors.New("unknown hub method")

// Peer is one live hub connection. Deliver must not block.
type Peer interface {
	ID() string
	ChatID() domain.ChatID
	Deliver(msg hubproto.Message) error
}

type Option func(*Hub)

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func WithHistoryLimit(n int) Option {
	return func(h *Hub) { h.historyLimit = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

type Hub struct {
	store        domain.MessageStore
	now          func() time.Time
	newID        func() string
	historyLimit int
	log          *slog.Logger

	mu    sync.RWMutex
	rooms map[domain.ChatID]map[string]Peer
}

func NewHub(store domain.MessageStore, opts ...Option) *Hub {
	h := &Hub{
		store:        store,
		now:          time.Now,
		newID:        uuid.NewString,
		historyLimit: DefaultHistoryLimit,
		log:          observability.Component("relay"),
		rooms:        make(map[domain.ChatID]map[string]Peer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Join(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[p.ChatID()]
	if !ok {
		room = make(map[string]Peer)
		h.rooms[p.ChatID()] = room
	}
	room[p.ID()] = p
	h.log.Debug("peer joined", "chat_id", p.ChatID(), "peer_id", p.ID(), "peers", len(room))
}

func (h *Hub) Leave(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[p.ChatID()]
	if !ok {
		return
	}
	delete(room, p.ID())
	if len(room) == 0 {
		delete(h.rooms, p.ChatID())
	}
	h.log.Debug("peer left", "chat_id", p.ChatID(), "peer_id", p.ID())
}

// Peers returns the number of live connections in a chat.
func (h *Hub) Peers(chatID domain.ChatID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// Broadcast delivers msg to every peer of the chat and returns how many
// accepted it.
func (h *Hub) Broadcast(chatID domain.ChatID, msg hubproto.Message) int {
	h.mu.RLock()
	peers := make([]Peer, 0, len(h.rooms[chatID]))
	for _, p := range h.rooms[chatID] {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, p := range peers {
		if err := p.Deliver(msg); err != nil {
			h.log.Warn("drop event for slow peer", "chat_id", chatID, "peer_id", p.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// HandleInvocation runs a client invocation and returns the completion to
// send back, or nil when the client asked for none.
func (h *Hub) HandleInvocation(ctx context.Context, p Peer, msg hubproto.Message) *hubproto.Message {
	var err error
	switch msg.Target {
	case SendMessageMethod:
		_, err = h.relayMessage(ctx, p, msg.Arguments)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMethod, msg.Target)
	}

	if err != nil {
		observability.LoggerFromContext(ctx).Warn("invocation failed",
			"target", msg.Target, "peer_id", p.ID(), "error", err)
	}
	if msg.InvocationID == "" {
		return nil
	}
	c := hubproto.NewCompletion(msg.InvocationID, err)
	return &c
}

// relayMessage stamps the message with the server clock and pushes it to the
// whole room, sender included.
func (h *Hub) relayMessage(ctx context.Context, p Peer, args []json.RawMessage) (*domain.InboundEvent, error) {
	evt, err := decodeSendArgs(args)
	if err != nil {
		return nil, err
	}
	if evt.ChatID != p.ChatID() {
		return nil, domain.NewInvalidInputError(fmt.Sprintf("connection belongs to chat %s", p.ChatID()))
	}
	evt.CreatedDate = h.now().UTC()

	frame, err := hubproto.NewInvocation("", ReceiveMessageMethod, domain.PayloadFromEvent(evt))
	if err != nil {
		return nil, err
	}
	n := h.Broadcast(evt.ChatID, frame)

	observability.LoggerFromContext(ctx).Info("message relayed",
		"chat_id", evt.ChatID, "sender_id", evt.SenderID, "peers", n)
	return &evt, nil
}

// decodeSendArgs reads SendMessage(chatId, senderId, content, mediaUrl?,
// duration?, messageType).
func decodeSendArgs(args []json.RawMessage) (domain.InboundEvent, error) {
	if len(args) != 6 {
		return domain.InboundEvent{}, domain.NewInvalidInputError(
			fmt.Sprintf("SendMessage expects 6 arguments, got %d", len(args)))
	}

	var (
		evt         domain.InboundEvent
		chatID      string
		senderID    string
		messageType int
	)
	fields := []struct {
		name string
		dst  any
	}{
		{"chatId", &chatID},
		{"senderId", &senderID},
		{"content", &evt.Content},
		{"mediaUrl", &evt.MediaURL},
		{"duration", &evt.Duration},
		{"messageType", &messageType},
	}
	for i, f := range fields {
		if err := sonic.Unmarshal(args[i], f.dst); err != nil {
			return domain.InboundEvent{}, domain.NewInvalidInputError(fmt.Sprintf("invalid %s argument", f.name))
		}
	}

	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(senderID) == "" {
		return domain.InboundEvent{}, domain.NewInvalidInputError("chatId and senderId are required")
	}
	evt.ChatID = domain.ChatID(chatID)
	evt.SenderID = domain.UserID(senderID)
	evt.MessageType = domain.MessageType(messageType)
	return evt, nil
}

// SaveMessage stores a message posted to the REST endpoint. The hub assigns
// the id and keeps the client's createdDate when it parses.
func (h *Hub) SaveMessage(ctx context.Context, p domain.MessagePayload) (*domain.InboundEvent, error) {
	if p.CreatedDate == "" {
		p.CreatedDate = domain.FormatCreatedDate(h.now())
	}
	evt, err := p.ToEvent()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, domain.NewInvalidInputError(err.Error())
		}
		return nil, err
	}
	if evt.Content == "" && evt.MediaURL == nil {
		return nil, domain.NewInvalidInputError("content or mediaUrl is required")
	}
	evt.ID = domain.MessageID(h.newID())

	if err := h.store.AppendMessage(ctx, &evt); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &evt, nil
}

// History returns the latest stored messages of a chat, oldest first.
func (h *Hub) History(ctx context.Context, chatID domain.ChatID) ([]*domain.InboundEvent, error) {
	if chatID == "" {
		return nil, domain.NewInvalidInputError("chat id is required")
	}
	msgs, err := h.store.GetMessagesByChat(ctx, chatID, h.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}
