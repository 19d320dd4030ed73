package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/relay"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

const outQueueSize = 128

var (
	errQueueFull     = errors.New("outbound queue full")
	errConnClosed    = errors.New("connection closed")
	errClientClosing = errors.New("client closed the connection")
)

// serverConn is the transport-independent half of a hub connection: it runs
// the handshake, feeds invocations to the relay and queues encoded records
// for the transport to write.
type serverConn struct {
	id     string
	chatID domain.ChatID
	hub    *relay.Hub
	log    *slog.Logger

	out  chan []byte
	done chan struct{}

	procMu     sync.Mutex
	buf        []byte
	handshaken bool

	idleMu sync.Mutex
	idle   *time.Timer

	closeOnce sync.Once
}

func newServerConn(chatID domain.ChatID, hub *relay.Hub, log *slog.Logger) *serverConn {
	id := uuid.NewString()
	return &serverConn{
		id:     id,
		chatID: chatID,
		hub:    hub,
		log:    log.With("chat_id", chatID, "conn_id", id),
		out:    make(chan []byte, outQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *serverConn) ID() string            { return c.id }
func (c *serverConn) ChatID() domain.ChatID { return c.chatID }

// Deliver queues msg without blocking.
func (c *serverConn) Deliver(msg hubproto.Message) error {
	data, err := hubproto.Encode(msg)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *serverConn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return errQueueFull
	}
}

// process consumes raw bytes from the client. A non-nil error means the
// connection must be closed.
func (c *serverConn) process(ctx context.Context, data []byte) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	c.buf = append(c.buf, data...)
	records, rest := hubproto.Split(c.buf)
	c.buf = append([]byte(nil), rest...)

	for _, r := range records {
		if !c.handshaken {
			if err := c.handshake(r); err != nil {
				return err
			}
			continue
		}
		if err := c.handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *serverConn) handshake(record []byte) error {
	var req hubproto.HandshakeRequest
	if err := sonic.Unmarshal(record, &req); err != nil {
		c.reject("malformed handshake")
		return fmt.Errorf("decode handshake: %w", err)
	}
	if req.Protocol != hubproto.ProtocolName || req.Version != hubproto.ProtocolVersion {
		reason := fmt.Sprintf("protocol %s version %d is not supported", req.Protocol, req.Version)
		c.reject(reason)
		return errors.New(reason)
	}

	resp, err := hubproto.Encode(hubproto.HandshakeResponse{})
	if err != nil {
		return err
	}
	// join first so the client never sees the response before it is in the room
	c.handshaken = true
	c.hub.Join(c)
	c.log.Info("hub client connected")
	return c.enqueue(resp)
}

func (c *serverConn) reject(reason string) {
	if resp, err := hubproto.Encode(hubproto.HandshakeResponse{Error: reason}); err == nil {
		_ = c.enqueue(resp)
	}
}

func (c *serverConn) handle(ctx context.Context, record []byte) error {
	msg, err := hubproto.Decode(record)
	if err != nil {
		c.log.Warn("dropping malformed frame", "error", err)
		return nil
	}

	switch msg.Type {
	case hubproto.TypeInvocation:
		if completion := c.hub.HandleInvocation(ctx, c, msg); completion != nil {
			if err := c.Deliver(*completion); err != nil {
				c.log.Warn("completion dropped", "invocation_id", msg.InvocationID, "error", err)
			}
		}
	case hubproto.TypePing:
	case hubproto.TypeClose:
		return errClientClosing
	default:
		c.log.Debug("ignoring frame", "type", msg.Type)
	}
	return nil
}

// close leaves the room and wakes the writer. Queued records stay readable.
func (c *serverConn) close() {
	c.closeOnce.Do(func() {
		c.procMu.Lock()
		joined := c.handshaken
		c.procMu.Unlock()

		if joined {
			c.hub.Leave(c)
		}
		close(c.done)
		c.log.Info("hub client disconnected")
	})
}

// drain returns every queued record without waiting.
func (c *serverConn) drain(first []byte) []byte {
	data := first
	for {
		select {
		case more := <-c.out:
			data = append(data, more...)
		default:
			return data
		}
	}
}
