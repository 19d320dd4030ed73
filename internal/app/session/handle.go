package session

import (
	"context"
	"sync/atomic"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

// Handle is the view of one chat returned by Open. A handle whose chat was
// replaced by another Open reopens it on the next EnsureConnected. A closed
// handle never does: its calls fail with domain.ErrSessionClosed.
type Handle struct {
	sup    *Supervisor
	chatID domain.ChatID
	closed atomic.Bool
}

func (h *Handle) ChatID() domain.ChatID {
	return h.chatID
}

func (h *Handle) State() State {
	return h.sup.State(h.chatID)
}

func (h *Handle) EnsureConnected(ctx context.Context) error {
	return h.sup.ensureConnected(ctx, h.chatID, h.closed.Load)
}

func (h *Handle) Send(ctx context.Context, method string, args ...any) error {
	if h.closed.Load() {
		return domain.ErrSessionClosed
	}
	return h.sup.Send(ctx, h.chatID, method, args...)
}

func (h *Handle) Subscribe(fn func(domain.InboundEvent)) func() {
	return h.sup.Subscribe(h.chatID, fn)
}

// Close closes the chat's session if it is still the current one. Only the
// first call has an effect.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.sup.Close(h.chatID)
}
