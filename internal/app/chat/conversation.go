package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/channel"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/session"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/timeline"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

const (
	noticeBuffer     = 64
	minSweepInterval = 10 * time.Millisecond
)

// ErrPendingExpired is the cause of a send rolled back by the pending sweeper.
var ErrPendingExpired = errors.New("pending message expired")

type NoticeKind int

const (
	NoticeDeliveryFailed NoticeKind = iota
	NoticePersistenceFailed
	NoticePendingExpired
	NoticeHistoryUnavailable
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeDeliveryFailed:
		return "delivery_failed"
	case NoticePersistenceFailed:
		return "persistence_failed"
	case NoticePendingExpired:
		return "pending_expired"
	case NoticeHistoryUnavailable:
		return "history_unavailable"
	default:
		return "unknown"
	}
}

// Notice is a user-facing toast.
type Notice struct {
	Kind         NoticeKind
	ClientTempID domain.ClientTempID
	Content      string
	Err          error
}

type SendInput struct {
	SenderID    domain.UserID
	Content     string
	MediaURL    *string
	Duration    *float64
	MessageType domain.MessageType
}

// Conversation is one open chat: its timeline, its channel and the signals
// a UI redraws from.
type Conversation struct {
	svc    *Service
	chatID domain.ChatID
	log    *slog.Logger

	handle      *session.Handle
	ch          *channel.Channel
	store       *timeline.Store
	unsubscribe func()

	changes chan struct{}
	notices chan Notice

	sendMu   sync.Mutex
	inflight map[domain.ClientTempID]*inflightSend

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newConversation(svc *Service, chatID domain.ChatID, log *slog.Logger) *Conversation {
	return &Conversation{
		svc:         svc,
		chatID:      chatID,
		log:         log,
		store:       timeline.New(timeline.WithDedupWindow(svc.settings.DedupWindow)),
		unsubscribe: func() {},
		changes:     make(chan struct{}, 1),
		notices:     make(chan Notice, noticeBuffer),
		stop:        make(chan struct{}),
		inflight:    make(map[domain.ClientTempID]*inflightSend),
	}
}

// inflightSend is a relay still waiting for the connection or the hub.
type inflightSend struct {
	cancel  context.CancelFunc
	expired bool
}

func (c *Conversation) ChatID() domain.ChatID {
	return c.chatID
}

// Send shows the message at once, relays it live and then writes it to the
// REST store. A failed relay removes the message again and is returned as a
// *domain.DeliveryFailedError; so is a relay still waiting when the pending
// timeout hits, with ErrPendingExpired as cause. A failed REST write is
// reported as a notice and only returned when rollback on persistence
// failure is enabled. A closed conversation sends nothing.
func (c *Conversation) Send(ctx context.Context, in SendInput) (*domain.OutboundMessage, error) {
	select {
	case <-c.stop:
		return nil, domain.NewDeliveryFailed(domain.ErrSessionClosed)
	default:
	}
	if in.SenderID == "" {
		return nil, domain.NewInvalidInputError("sender id is required")
	}
	if strings.TrimSpace(in.Content) == "" && in.MediaURL == nil {
		return nil, domain.NewInvalidInputError("message is empty")
	}

	msg := domain.OutboundMessage{
		ClientTempID:  domain.ClientTempID(c.svc.newID()),
		ChatID:        c.chatID,
		SenderID:      in.SenderID,
		Content:       in.Content,
		MediaURL:      in.MediaURL,
		Duration:      in.Duration,
		MessageType:   in.MessageType,
		CreatedAt:     c.svc.now(),
		DeliveryState: domain.DeliveryPending,
	}

	log := c.log.With("client_temp_id", msg.ClientTempID, "sender_id", msg.SenderID)

	if err := c.store.AppendOptimistic(msg); err != nil {
		return nil, err
	}
	c.changed()

	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.track(msg.ClientTempID, cancel)

	err := c.ch.Send(relayCtx, &msg)
	expired := c.untrack(msg.ClientTempID)
	if err != nil {
		content, _ := c.store.MarkFailed(msg.ClientTempID)
		if content == "" {
			content = msg.Content
		}
		msg.DeliveryState = domain.DeliveryFailed
		c.changed()

		if expired {
			log.Warn("pending message expired")
			c.notify(Notice{Kind: NoticePendingExpired, ClientTempID: msg.ClientTempID, Content: content})
			return nil, domain.NewDeliveryFailed(ErrPendingExpired)
		}
		log.Warn("message rolled back", "error", err)
		c.notify(Notice{Kind: NoticeDeliveryFailed, ClientTempID: msg.ClientTempID, Content: content, Err: err})
		return nil, err
	}

	c.store.MarkSent(msg.ClientTempID)
	msg.DeliveryState = domain.DeliverySent
	c.changed()

	if c.svc.persist == nil {
		return &msg, nil
	}

	if err := c.svc.persist.SaveMessage(ctx, &msg); err != nil {
		perr := domain.NewPersistenceFailure(msg.ClientTempID, err)
		log.Warn("failed to persist message", "error", err)
		c.notify(Notice{Kind: NoticePersistenceFailed, ClientTempID: msg.ClientTempID, Content: msg.Content, Err: perr})

		if c.svc.settings.RollbackOnPersistFailure {
			if _, removed := c.store.MarkFailed(msg.ClientTempID); removed {
				c.changed()
			}
			return nil, perr
		}
	}

	log.Debug("send completed")
	return &msg, nil
}

// Messages returns the timeline in display order.
func (c *Conversation) Messages() []domain.DisplayedMessage {
	return c.store.Messages()
}

func (c *Conversation) Status() session.State {
	if c.handle == nil {
		return session.Idle
	}
	return c.handle.State()
}

// Changes fires after the timeline or the connection state changed.
// Signals coalesce; read Messages and Status after each one.
func (c *Conversation) Changes() <-chan struct{} {
	return c.changes
}

func (c *Conversation) Notices() <-chan Notice {
	return c.notices
}

// Close ends the session of this chat. Safe to call more than once.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.cancelInflight()
		c.unsubscribe()
		c.wg.Wait()
		c.svc.release(c)
		if c.handle != nil {
			c.closeErr = c.handle.Close()
		}
		c.log.Info("conversation closed")
	})
	return c.closeErr
}

func (c *Conversation) start() {
	timeout := c.svc.settings.PendingTimeout
	if timeout <= 0 {
		return
	}

	interval := timeout / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.expirePending(timeout)
			case <-c.stop:
				return
			}
		}
	}()
}

// expirePending cancels the relays of Pending rows older than timeout. Each
// Send then rolls its own row back, so a message that did reach the hub is
// never reported as expired.
func (c *Conversation) expirePending(timeout time.Duration) {
	stale := c.store.PendingBefore(c.svc.now().Add(-timeout))
	if len(stale) == 0 {
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	for _, m := range stale {
		f, ok := c.inflight[m.ClientTempID]
		if !ok || f.expired {
			continue
		}
		f.expired = true
		f.cancel()
	}
}

func (c *Conversation) track(id domain.ClientTempID, cancel context.CancelFunc) {
	c.sendMu.Lock()
	c.inflight[id] = &inflightSend{cancel: cancel}
	c.sendMu.Unlock()
}

// untrack reports whether the sweeper expired the send.
func (c *Conversation) untrack(id domain.ClientTempID) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	f, ok := c.inflight[id]
	delete(c.inflight, id)
	return ok && f.expired
}

func (c *Conversation) cancelInflight() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	for _, f := range c.inflight {
		f.cancel()
	}
}

func (c *Conversation) onEvent(evt domain.InboundEvent) {
	outcome := c.store.Reconcile(evt)
	c.log.Debug("inbound message", "sender_id", evt.SenderID, "outcome", outcome.String())
	if outcome != timeline.Duplicate {
		c.changed()
	}
}

func (c *Conversation) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Conversation) notify(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.log.Warn("notice dropped, nobody is reading", "kind", n.Kind.String())
	}
}
