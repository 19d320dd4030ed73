// Package chat wires the supervisor, channel and timeline into the
// "open a conversation, send, watch it update" flow.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/channel"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/session"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/timeline"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

// Settings tunes the conversation behaviour. Start from DefaultSettings.
type Settings struct {
	Policy         session.RetryPolicy
	DedupWindow    time.Duration
	PendingTimeout time.Duration // 0 keeps pending rows until close

	// RollbackOnPersistFailure removes a message whose REST write failed even
	// though it went out live. Off by default: the failure is only reported.
	RollbackOnPersistFailure bool
}

func DefaultSettings() Settings {
	return Settings{
		Policy:         session.DefaultRetryPolicy(),
		DedupWindow:    timeline.DefaultDedupWindow,
		PendingTimeout: 30 * time.Second,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Policy:                   session.PolicyFromConfig(cfg),
		DedupWindow:              cfg.DedupWindow,
		PendingTimeout:           cfg.PendingTimeout,
		RollbackOnPersistFailure: cfg.RollbackOnPersistFailure,
	}
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// Service keeps one conversation in focus at a time.
type Service struct {
	sup      *session.Supervisor
	persist  domain.PersistenceGateway
	settings Settings
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	active *Conversation
}

func NewService(
	factory domain.TransportFactory,
	tokens domain.TokenProvider,
	persist domain.PersistenceGateway,
	settings Settings,
	opts ...Option,
) *Service {
	if settings.Policy.RetryInterval <= 0 {
		settings.Policy = session.DefaultRetryPolicy()
	}

	s := &Service{
		persist:  persist,
		settings: settings,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sup = session.NewSupervisor(factory, tokens, settings.Policy, session.WithStateListener(s.stateChanged))
	return s
}

// Open focuses chatID: the previous conversation is closed, stored history
// is loaded and the live session starts connecting in the background.
func (s *Service) Open(ctx context.Context, chatID domain.ChatID) (*Conversation, error) {
	ctx = observability.WithChatID(ctx, string(chatID))
	log := observability.LoggerFromContext(ctx)
	log.Info("opening conversation")

	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			log.Warn("failed to close previous conversation", "prev_chat_id", prev.chatID, "error", err)
		}
	}

	conv := newConversation(s, chatID, log)

	if s.persist != nil {
		history, err := s.persist.ListMessages(ctx, chatID)
		if err != nil {
			log.Warn("failed to load history", "error", err)
			conv.notify(Notice{Kind: NoticeHistoryUnavailable, Err: err})
		} else {
			n := conv.store.Seed(history)
			log.Info("history loaded", "message_count", n)
		}
	}

	conv.unsubscribe = s.sup.Subscribe(chatID, conv.onEvent)

	handle, err := s.sup.Open(ctx, chatID)
	if err != nil {
		conv.unsubscribe()
		log.Error("failed to open session", "error", err)
		return nil, err
	}
	conv.handle = handle
	conv.ch = channel.New(handle)
	conv.start()

	s.mu.Lock()
	s.active = conv
	s.mu.Unlock()

	return conv, nil
}

// Active returns the conversation in focus, or nil.
func (s *Service) Active() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// History reads the stored messages of a chat without opening a session.
func (s *Service) History(ctx context.Context, chatID domain.ChatID) ([]domain.InboundEvent, error) {
	if s.persist == nil {
		return nil, domain.NewNotFoundError("history store", string(chatID))
	}

	log := observability.LoggerFromContext(ctx).With("chat_id", chatID)

	msgs, err := s.persist.ListMessages(ctx, chatID)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, err
	}

	log.Info("fetched chat history", "message_count", len(msgs))
	return msgs, nil
}

// Close closes the conversation in focus and stops the supervisor.
func (s *Service) Close() error {
	s.mu.Lock()
	conv := s.active
	s.active = nil
	s.mu.Unlock()

	if conv != nil {
		_ = conv.Close()
	}
	return s.sup.Shutdown()
}

func (s *Service) release(conv *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == conv {
		s.active = nil
	}
}

func (s *Service) stateChanged(chatID domain.ChatID, st session.State) {
	s.mu.Lock()
	conv := s.active
	s.mu.Unlock()

	if conv != nil && conv.chatID == chatID {
		conv.log.Debug("connection state changed", "state", st.String())
		conv.changed()
	}
}
