// Package channel is the send/receive facade of one chat over a supervised
// hub connection.
package channel

import (
	"context"
	"log/slog"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

// SendMessageMethod is the hub method that relays a chat message.
const SendMessageMethod = "SendMessage"

// Session is the part of a supervised chat session the channel needs.
// *session.Handle implements it.
type Session interface {
	ChatID() domain.ChatID
	EnsureConnected(ctx context.Context) error
	Send(ctx context.Context, method string, args ...any) error
	Subscribe(fn func(domain.InboundEvent)) func()
}

type Channel struct {
	sess Session
	log  *slog.Logger
}

func New(sess Session) *Channel {
	return &Channel{
		sess: sess,
		log:  observability.Component("channel").With("chat_id", sess.ChatID()),
	}
}

func (c *Channel) ChatID() domain.ChatID {
	return c.sess.ChatID()
}

// Send waits for the connection, then invokes SendMessage with the chat id,
// sender, content, media url, duration and message type. Any failure comes
// back as a *domain.DeliveryFailedError; rolling back is up to the caller.
func (c *Channel) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	if msg.ChatID != c.sess.ChatID() {
		return domain.NewDeliveryFailed(domain.NewInvalidInputError("message belongs to chat " + string(msg.ChatID)))
	}

	if err := c.sess.EnsureConnected(ctx); err != nil {
		c.log.Warn("send aborted, no connection", "client_temp_id", msg.ClientTempID, "error", err)
		return domain.NewDeliveryFailed(err)
	}

	err := c.sess.Send(ctx, SendMessageMethod,
		string(msg.ChatID),
		string(msg.SenderID),
		msg.Content,
		msg.MediaURL,
		msg.Duration,
		int(msg.MessageType),
	)
	if err != nil {
		c.log.Warn("send failed", "client_temp_id", msg.ClientTempID, "error", err)
		return domain.NewDeliveryFailed(err)
	}

	c.log.Debug("message sent", "client_temp_id", msg.ClientTempID)
	return nil
}

// Subscribe registers fn for inbound events. Dispatch order across
// subscribers is unspecified. The returned func unsubscribes; it never closes
// the session.
func (c *Channel) Subscribe(fn func(domain.InboundEvent)) func() {
	return c.sess.Subscribe(fn)
}
