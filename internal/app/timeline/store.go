// Package timeline keeps the ordered, deduplicated message log of one chat.
package timeline

import (
	"sync"
	"time"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

// DefaultDedupWindow is how close a server echo must be to the local send
// time to be treated as the same message.
const DefaultDedupWindow = time.Second

// Outcome tells what Reconcile did with an event.
type Outcome int

const (
	Appended Outcome = iota
	Replaced
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type Option func(*Store)

// WithDedupWindow sets the echo matching window. Non-positive values disable
// matching, every event is then appended.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Store) {
		s.window = d
	}
}

// Store is safe for concurrent use. Every mutation holds one lock, so a
// Reconcile never runs in the middle of an AppendOptimistic.
type Store struct {
	mu     sync.Mutex
	window time.Duration
	rows   []domain.DisplayedMessage
}

func New(opts ...Option) *Store {
	s := &Store{window: DefaultDedupWindow}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendOptimistic adds a locally authored message at the end of the log in
// the Pending state.
func (s *Store) AppendOptimistic(msg domain.OutboundMessage) error {
	if msg.ClientTempID == "" {
		return domain.NewInvalidInputError("client temp id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOfTemp(msg.ClientTempID) >= 0 {
		return domain.NewInvalidInputError("duplicate client temp id " + string(msg.ClientTempID))
	}

	msg.DeliveryState = domain.DeliveryPending
	s.rows = append(s.rows, domain.DisplayedMessage{Optimistic: &msg})
	return nil
}

// Reconcile merges a server event. The first unconfirmed row with the same
// sender and content, created within the window, is replaced in place.
// Unconfirmed covers Pending rows and rows already marked Sent whose echo
// has not arrived yet, since the invoke can complete before the hub echoes.
// Otherwise the event becomes a new row. Events whose server id is already
// shown are dropped.
func (s *Store) Reconcile(evt domain.InboundEvent) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.ID != "" && s.hasConfirmed(evt.ID) {
		return Duplicate
	}

	if i := s.matchEcho(evt); i >= 0 {
		s.rows[i] = domain.DisplayedMessage{Confirmed: &evt}
		return Replaced
	}

	s.rows = append(s.rows, domain.DisplayedMessage{Confirmed: &evt})
	return Appended
}

// Seed appends confirmed history, skipping ids already present. It returns
// the number of rows added.
func (s *Store) Seed(events []domain.InboundEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for i := range events {
		evt := events[i]
		if evt.ID != "" && s.hasConfirmed(evt.ID) {
			continue
		}
		s.rows = append(s.rows, domain.DisplayedMessage{Confirmed: &evt})
		added++
	}
	return added
}

// MarkSent flags an unconfirmed row as delivered over the live channel.
func (s *Store) MarkSent(id domain.ClientTempID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfTemp(id)
	if i < 0 {
		return false
	}
	s.rows[i].Optimistic.DeliveryState = domain.DeliverySent
	return true
}

// MarkFailed rolls back an unconfirmed row: it is removed from the log and
// its content returned for the error notice.
func (s *Store) MarkFailed(id domain.ClientTempID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfTemp(id)
	if i < 0 {
		return "", false
	}
	content := s.rows[i].Optimistic.Content
	s.rows[i].Optimistic.DeliveryState = domain.DeliveryFailed
	copy(s.rows[i:], s.rows[i+1:])
	s.rows[len(s.rows)-1] = domain.DisplayedMessage{}
	s.rows = s.rows[:len(s.rows)-1]
	return content, true
}

// PendingBefore returns copies of the Pending rows created before cutoff.
// The rows stay in place; removing them is up to whoever owns their send.
func (s *Store) PendingBefore(cutoff time.Time) []domain.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.OutboundMessage
	for _, r := range s.rows {
		if r.Optimistic != nil &&
			r.Optimistic.DeliveryState == domain.DeliveryPending &&
			r.Optimistic.CreatedAt.Before(cutoff) {
			out = append(out, *r.Optimistic)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Messages returns a copy of the log in display order.
func (s *Store) Messages() []domain.DisplayedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.DisplayedMessage, len(s.rows))
	for i, r := range s.rows {
		if r.Confirmed != nil {
			c := *r.Confirmed
			out[i].Confirmed = &c
		} else {
			o := *r.Optimistic
			out[i].Optimistic = &o
		}
	}
	return out
}

// matchEcho scans unconfirmed rows, Sent ones included.
func (s *Store) matchEcho(evt domain.InboundEvent) int {
	if s.window <= 0 {
		return -1
	}
	for i, r := range s.rows {
		o := r.Optimistic
		if o == nil || o.DeliveryState == domain.DeliveryFailed {
			continue
		}
		if o.SenderID != evt.SenderID || o.Content != evt.Content {
			continue
		}
		delta := evt.CreatedDate.Sub(o.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta < s.window {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfTemp(id domain.ClientTempID) int {
	for i, r := range s.rows {
		if r.Optimistic != nil && r.Optimistic.ClientTempID == id {
			return i
		}
	}
	return -1
}

func (s *Store) hasConfirmed(id domain.MessageID) bool {
	for _, r := range s.rows {
		if r.Confirmed != nil && r.Confirmed.ID == id {
			return true
		}
	}
	return false
}
