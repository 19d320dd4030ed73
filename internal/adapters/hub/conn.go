// Package hub is the client side of the real-time chat hub: one Conn per
// chat, over WebSockets or long polling.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

// link moves raw protocol bytes over one underlying connection.
type link interface {
	name() string
	open(ctx context.Context) error
	send(ctx context.Context, data []byte) error
	// receive returns the next chunk. An empty chunk with a nil error means
	// the server is alive but had nothing to say.
	receive(ctx context.Context) ([]byte, error)
	close() error
}

type linkDialer func(token string) (link, error)

// Conn implements domain.Transport.
type Conn struct {
	chatID  domain.ChatID
	tokens  domain.TokenProvider
	opts    Options
	dialers []linkDialer
	log     *slog.Logger

	handlersMu    sync.RWMutex
	handlers      map[string][]domain.EventHandler
	closeHandlers []func(error)

	mu      sync.Mutex
	link    link
	started bool
	closed  bool
	nextID  uint64
	pending map[string]chan hubproto.Message

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(chatID domain.ChatID, tokens domain.TokenProvider, opts Options, dialers []linkDialer, log *slog.Logger) *Conn {
	return &Conn{
		chatID:   chatID,
		tokens:   tokens,
		opts:     opts,
		dialers:  dialers,
		log:      log,
		handlers: make(map[string][]domain.EventHandler),
		pending:  make(map[string]chan hubproto.Message),
		done:     make(chan struct{}),
	}
}

// Start fetches a fresh token, connects and completes the handshake. Each
// configured transport is tried in turn.
func (c *Conn) Start(ctx context.Context) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCredentialMissing, err)
	}
	if tok == "" {
		return domain.ErrCredentialMissing
	}

	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: connection already used", domain.ErrConnectFailure)
	}
	c.mu.Unlock()

	hsCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	var (
		errs []error
		l    link
		buf  []byte
	)
	for _, dial := range c.dialers {
		candidate, err := dial(tok)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		buf, err = c.handshake(hsCtx, candidate)
		if err == nil {
			l = candidate
			break
		}
		_ = candidate.close()
		c.log.Debug("transport failed", "transport", candidate.name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", candidate.name(), err))
		if hsCtx.Err() != nil {
			break
		}
	}
	if l == nil {
		return fmt.Errorf("%w: %w", domain.ErrConnectFailure, errors.Join(errs...))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = l.close()
		return fmt.Errorf("%w: stopped during start", domain.ErrConnectFailure)
	}
	c.link = l
	c.started = true
	c.mu.Unlock()

	c.log.Info("hub connected", "transport", l.name())

	go c.readLoop(l, buf)
	go c.pingLoop(l)
	return nil
}

// handshake returns whatever arrived after the handshake response.
func (c *Conn) handshake(ctx context.Context, l link) ([]byte, error) {
	if err := l.open(ctx); err != nil {
		return nil, err
	}

	req, err := hubproto.Encode(hubproto.HandshakeRequest{
		Protocol: hubproto.ProtocolName,
		Version:  hubproto.ProtocolVersion,
	})
	if err != nil {
		return nil, err
	}
	if err := l.send(ctx, req); err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	var buf []byte
	for {
		data, err := l.receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("read handshake: %w", err)
		}
		buf = append(buf, data...)

		records, rest := hubproto.Split(buf)
		if len(records) == 0 {
			continue
		}

		var resp hubproto.HandshakeResponse
		if err := sonic.Unmarshal(records[0], &resp); err != nil {
			return nil, fmt.Errorf("decode handshake: %w", err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("handshake rejected: %s", resp.Error)
		}

		var remaining []byte
		for _, r := range records[1:] {
			remaining = append(remaining, r...)
			remaining = append(remaining, hubproto.RecordSeparator)
		}
		return append(remaining, rest...), nil
	}
}

// Invoke calls a hub method and waits for its completion.
func (c *Conn) Invoke(ctx context.Context, method string, args ...any) error {
	if _, ok := ctx.Deadline(); !ok && c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return domain.ErrNotConnected
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	ch := make(chan hubproto.Message, 1)
	c.pending[id] = ch
	l := c.link
	c.mu.Unlock()

	defer c.forget(id)

	msg, err := hubproto.NewInvocation(id, method, args...)
	if err != nil {
		return err
	}
	data, err := hubproto.Encode(msg)
	if err != nil {
		return err
	}
	if err := l.send(ctx, data); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			return fmt.Errorf("%s rejected by hub: %s", method, res.Error)
		}
		return nil
	case <-c.done:
		return fmt.Errorf("%w: connection closed before %s completed", domain.ErrTransientDrop, method)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) On(event string, handler domain.EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *Conn) OnClose(handler func(err error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.closeHandlers = append(c.closeHandlers, handler)
}

// Stop closes the connection; close handlers see a nil error.
func (c *Conn) Stop(ctx context.Context) error {
	c.mu.Lock()
	l, started := c.link, c.started
	c.mu.Unlock()

	if started {
		if frame, err := hubproto.Encode(hubproto.CloseFrame("", false)); err == nil {
			_ = l.send(ctx, frame)
		}
	}
	c.finish(nil)
	return nil
}

func (c *Conn) readLoop(l link, buf []byte) {
	for {
		var records [][]byte
		records, buf = hubproto.Split(buf)
		for _, r := range records {
			if c.handleRecord(r) {
				return
			}
		}
		buf = append([]byte(nil), buf...)

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ServerTimeout)
		data, err := l.receive(ctx)
		cancel()
		if err != nil {
			c.finish(fmt.Errorf("%w: %s: %v", domain.ErrTransientDrop, l.name(), err))
			return
		}
		buf = append(buf, data...)
	}
}

// handleRecord reports whether the server closed the connection.
func (c *Conn) handleRecord(record []byte) bool {
	msg, err := hubproto.Decode(record)
	if err != nil {
		c.log.Warn("dropping malformed frame", "error", err)
		return false
	}

	switch msg.Type {
	case hubproto.TypeInvocation:
		c.handlersMu.RLock()
		handlers := append([]domain.EventHandler(nil), c.handlers[msg.Target]...)
		c.handlersMu.RUnlock()
		if len(handlers) == 0 {
			c.log.Debug("no handler for invocation", "target", msg.Target)
		}
		for _, h := range handlers {
			h(msg.Arguments)
		}
	case hubproto.TypeCompletion:
		c.mu.Lock()
		ch := c.pending[msg.InvocationID]
		c.mu.Unlock()
		if ch != nil {
			select {
			case ch <- msg:
			default:
			}
		}
	case hubproto.TypePing:
	case hubproto.TypeClose:
		if msg.Error != "" {
			c.finish(fmt.Errorf("%w: hub closed the connection: %s", domain.ErrTransientDrop, msg.Error))
		} else {
			c.finish(nil)
		}
		return true
	default:
		c.log.Debug("ignoring frame", "type", msg.Type)
	}
	return false
}

func (c *Conn) pingLoop(l link) {
	if c.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	ping, err := hubproto.Encode(hubproto.Ping())
	if err != nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
			err := l.send(ctx, ping)
			cancel()
			if err != nil {
				c.log.Debug("ping failed", "error", err)
			}
		case <-c.done:
			return
		}
	}
}

// finish runs once. Close handlers only fire for a started connection.
func (c *Conn) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		l, started := c.link, c.started
		c.mu.Unlock()

		close(c.done)
		if l != nil {
			_ = l.close()
		}
		if !started {
			return
		}

		if err != nil {
			c.log.Warn("hub connection lost", "error", err)
		} else {
			c.log.Info("hub connection closed")
		}

		c.handlersMu.RLock()
		handlers := slices.Clone(c.closeHandlers)
		c.handlersMu.RUnlock()
		for _, h := range handlers {
			h(err)
		}
	})
}

func (c *Conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
