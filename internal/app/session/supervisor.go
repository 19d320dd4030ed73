// Package session supervises the live hub connection of the open chat.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

// ReceiveMessageEvent is the hub invocation carrying a server-stamped message.
const ReceiveMessageEvent = "ReceiveMessage"

const (
	inboundBuffer = 256
	stateBuffer   = 32
	stopTimeout   = 5 * time.Second
)

type State int

const (
	Idle State = iota
	Connecting
	Connected
	Reconnecting
	RetryWait
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case RetryWait:
		return "retry_wait"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type tier string

const (
	tierInner tier = "inner"
	tierOuter tier = "outer"
)

type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		s.log = l
	}
}

// WithAfterFunc replaces time.AfterFunc for the retry timers.
func WithAfterFunc(fn func(d time.Duration, f func()) *time.Timer) Option {
	return func(s *Supervisor) {
		s.afterFunc = fn
	}
}

// WithStateListener registers fn for state transitions. Calls for one
// session are made in order from its dispatcher goroutine.
func WithStateListener(fn func(chatID domain.ChatID, st State)) Option {
	return func(s *Supervisor) {
		s.onState = fn
	}
}

// Supervisor keeps at most one chat session, and so at most one live
// transport. Opening a chat tears down the previous one first.
type Supervisor struct {
	factory domain.TransportFactory
	tokens  domain.TokenProvider
	policy  RetryPolicy
	log     *slog.Logger
	onState func(domain.ChatID, State)

	afterFunc func(time.Duration, func()) *time.Timer

	openMu sync.Mutex // serialises Open

	mu      sync.Mutex
	current *chatSession

	subMu  sync.RWMutex
	subSeq uint64
	subs   map[domain.ChatID]map[uint64]func(domain.InboundEvent)
}

// chatSession fields are guarded by Supervisor.mu.
type chatSession struct {
	chatID domain.ChatID
	state  State

	conn            domain.Transport
	candidate       domain.Transport
	candidateClosed bool
	candidateErr    error
	attempting      bool

	innerAttempt int
	outerAttempt int
	timer        *time.Timer

	ready chan struct{} // closed on Connected, replaced after a drop
	done  chan struct{} // closed on teardown
	fatal error

	ctx    context.Context
	cancel context.CancelFunc

	inbound chan domain.InboundEvent
	states  chan State
}

func NewSupervisor(factory domain.TransportFactory, tokens domain.TokenProvider, policy RetryPolicy, opts ...Option) *Supervisor {
	s := &Supervisor{
		factory: factory,
		tokens:  tokens,
		policy:  policy,
		log:     observability.Component("session"),
		subs:    make(map[domain.ChatID]map[uint64]func(domain.InboundEvent)),

		afterFunc: time.AfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a session for chatID and returns at once. Only a missing
// credential is reported; connect failures are retried in the background.
func (s *Supervisor) Open(ctx context.Context, chatID domain.ChatID) (*Handle, error) {
	if chatID == "" {
		return nil, domain.NewInvalidInputError("chat id is required")
	}

	s.openMu.Lock()
	defer s.openMu.Unlock()

	if err := s.openLocked(ctx, chatID); err != nil {
		return nil, err
	}
	return &Handle{sup: s, chatID: chatID}, nil
}

// ensureSession opens chatID unless it already has a live session, so that
// concurrent callers do not replace each other's fresh session. released,
// when set, is checked under openMu so a closed handle never reopens.
func (s *Supervisor) ensureSession(ctx context.Context, chatID domain.ChatID, released func() bool) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if released != nil && released() {
		return domain.ErrSessionClosed
	}

	s.mu.Lock()
	cur := s.current
	exists := cur != nil && cur.chatID == chatID && cur.state != Closed
	s.mu.Unlock()
	if exists {
		return nil
	}
	return s.openLocked(ctx, chatID)
}

// openLocked must be called with openMu held.
func (s *Supervisor) openLocked(ctx context.Context, chatID domain.ChatID) error {
	if err := s.checkCredential(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	var stale domain.Transport
	if prev := s.current; prev != nil {
		s.log.Info("tearing down previous session", "chat_id", prev.chatID, "next_chat_id", chatID)
		stale = s.teardownLocked(prev, nil)
	}

	sess := newChatSession(chatID)
	s.current = sess
	s.setStateLocked(sess, Connecting)
	s.mu.Unlock()

	if err := stopTransport(stale); err != nil {
		s.log.Warn("failed to stop previous transport", "error", err)
	}

	go s.dispatch(sess)
	go s.attempt(sess, tierOuter)

	s.log.Info("session opened", "chat_id", chatID)
	return nil
}

// EnsureConnected blocks until the session for chatID is Connected, opening
// it when missing. A session waiting between outer attempts is retried now.
// There is no timeout besides ctx.
func (s *Supervisor) EnsureConnected(ctx context.Context, chatID domain.ChatID) error {
	return s.ensureConnected(ctx, chatID, nil)
}

func (s *Supervisor) ensureConnected(ctx context.Context, chatID domain.ChatID, released func() bool) error {
	for {
		if released != nil && released() {
			return domain.ErrSessionClosed
		}

		s.mu.Lock()
		sess := s.current
		if sess == nil || sess.chatID != chatID || sess.state == Closed {
			s.mu.Unlock()
			if chatID == "" {
				return domain.NewInvalidInputError("chat id is required")
			}
			if err := s.ensureSession(ctx, chatID, released); err != nil {
				return err
			}
			continue
		}
		if sess.state == Connected {
			s.mu.Unlock()
			return nil
		}
		if sess.state == RetryWait && !sess.attempting {
			s.log.Debug("pulling retry forward", "chat_id", chatID)
			s.armLocked(sess, 0, tierOuter)
		}
		ready, done := sess.ready, sess.done
		s.mu.Unlock()

		select {
		case <-ready:
		case <-done:
			s.mu.Lock()
			fatal := sess.fatal
			s.mu.Unlock()
			if fatal != nil {
				return fatal
			}
			return domain.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send invokes a hub method on the live connection of chatID.
func (s *Supervisor) Send(ctx context.Context, chatID domain.ChatID, method string, args ...any) error {
	s.mu.Lock()
	sess := s.current
	if sess == nil || sess.chatID != chatID || sess.state != Connected || sess.conn == nil {
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	conn := sess.conn
	s.mu.Unlock()

	if err := conn.Invoke(ctx, method, args...); err != nil {
		return fmt.Errorf("invoke %s: %w", method, err)
	}
	return nil
}

// Subscribe registers fn for inbound events of chatID. Subscriptions outlive
// reconnects and session replacement; unsubscribing never closes a session.
func (s *Supervisor) Subscribe(chatID domain.ChatID, fn func(domain.InboundEvent)) func() {
	s.subMu.Lock()
	s.subSeq++
	id := s.subSeq
	if s.subs[chatID] == nil {
		s.subs[chatID] = make(map[uint64]func(domain.InboundEvent))
	}
	s.subs[chatID][id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[chatID], id)
			if len(s.subs[chatID]) == 0 {
				delete(s.subs, chatID)
			}
		})
	}
}

// State reports Idle for a chat without a session.
func (s *Supervisor) State(chatID domain.ChatID) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.chatID != chatID {
		return Idle
	}
	return s.current.state
}

// Close tears the session of chatID down: timers are cancelled and the
// transport stopped. Closing an unknown or closed chat is a no-op.
func (s *Supervisor) Close(chatID domain.ChatID) error {
	s.mu.Lock()
	sess := s.current
	if sess == nil || sess.chatID != chatID {
		s.mu.Unlock()
		return nil
	}
	conn := s.teardownLocked(sess, nil)
	s.current = nil
	s.mu.Unlock()

	s.log.Info("session closed", "chat_id", chatID)
	return stopTransport(conn)
}

// Shutdown closes whatever session is open.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	return s.Close(sess.chatID)
}

func (s *Supervisor) checkCredential(ctx context.Context) error {
	tok, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCredentialMissing, err)
	}
	if tok == "" {
		return domain.ErrCredentialMissing
	}
	return nil
}

// attempt runs one connect of the given tier. Failures schedule the next
// attempt of the same tier.
func (s *Supervisor) attempt(sess *chatSession, t tier) {
	s.mu.Lock()
	if sess.state == Closed || sess.state == Connected || sess.attempting {
		s.mu.Unlock()
		return
	}
	sess.attempting = true
	sess.candidateClosed, sess.candidateErr = false, nil
	n := sess.innerAttempt
	if t == tierOuter {
		sess.outerAttempt++
		n = sess.outerAttempt
		s.setStateLocked(sess, Connecting)
	} else {
		s.setStateLocked(sess, Reconnecting)
	}
	tr := s.factory.NewTransport(sess.chatID, s.tokens)
	sess.candidate = tr
	ctx := sess.ctx
	s.mu.Unlock()

	log := s.log.With("chat_id", sess.chatID, "tier", string(t), "attempt", n)

	tr.On(ReceiveMessageEvent, func(args []json.RawMessage) { s.receive(sess, args) })
	tr.OnClose(func(err error) { s.handleClose(sess, tr, err) })

	log.Debug("connecting")
	err := tr.Start(ctx)

	s.mu.Lock()
	sess.attempting = false
	sess.candidate = nil

	if sess.state == Closed {
		s.mu.Unlock()
		if err == nil {
			stopTransport(tr)
		}
		return
	}

	if err == nil && sess.candidateClosed {
		err = fmt.Errorf("%w: closed during start: %v", domain.ErrTransientDrop, sess.candidateErr)
	}

	if err != nil {
		if domain.IsCredentialMissing(err) {
			log.Error("credential missing, giving up", "error", err)
			s.teardownLocked(sess, domain.ErrCredentialMissing)
			if s.current == sess {
				s.current = nil
			}
			s.mu.Unlock()
			return
		}

		log.Warn("connect failed", "error", fmt.Errorf("%w: %v", domain.ErrConnectFailure, err))
		if t == tierInner {
			s.scheduleInnerLocked(sess)
		} else {
			s.setStateLocked(sess, RetryWait)
			s.armLocked(sess, s.policy.RetryInterval, tierOuter)
		}
		s.mu.Unlock()
		return
	}

	sess.conn = tr
	sess.innerAttempt = 0
	sess.outerAttempt = 0
	s.setStateLocked(sess, Connected)
	close(sess.ready)
	s.mu.Unlock()

	log.Info("connected")
}

func (s *Supervisor) handleClose(sess *chatSession, tr domain.Transport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.state == Closed {
		return
	}
	if sess.candidate == tr {
		sess.candidateClosed, sess.candidateErr = true, err
		return
	}
	if sess.conn != tr {
		return
	}

	sess.conn = nil
	sess.ready = make(chan struct{})

	if err == nil {
		s.log.Info("transport closed", "chat_id", sess.chatID)
		s.fullCloseLocked(sess)
		return
	}

	s.log.Warn("transport dropped", "chat_id", sess.chatID, "error", fmt.Errorf("%w: %v", domain.ErrTransientDrop, err))
	sess.innerAttempt = 0
	s.scheduleInnerLocked(sess)
}

func (s *Supervisor) scheduleInnerLocked(sess *chatSession) {
	next := sess.innerAttempt + 1
	delay, ok := s.policy.innerDelay(next)
	if !ok {
		s.log.Warn("reconnect attempts exhausted", "chat_id", sess.chatID, "attempts", sess.innerAttempt)
		s.fullCloseLocked(sess)
		return
	}
	sess.innerAttempt = next
	s.setStateLocked(sess, Reconnecting)
	s.armLocked(sess, delay, tierInner)
}

// fullCloseLocked waits CloseGrace before handing over to the outer tier.
// attempt skips the run if the session got connected meanwhile.
func (s *Supervisor) fullCloseLocked(sess *chatSession) {
	sess.innerAttempt = 0
	s.setStateLocked(sess, RetryWait)
	s.armLocked(sess, s.policy.CloseGrace, tierOuter)
}

func (s *Supervisor) armLocked(sess *chatSession, d time.Duration, t tier) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timer = s.afterFunc(d, func() { s.attempt(sess, t) })
}

// teardownLocked closes sess and returns the transport the caller must stop
// once the lock is released.
func (s *Supervisor) teardownLocked(sess *chatSession, fatal error) domain.Transport {
	if sess.state == Closed {
		return nil
	}
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.fatal = fatal
	s.setStateLocked(sess, Closed)
	sess.cancel()
	close(sess.done)

	conn := sess.conn
	sess.conn = nil
	return conn
}

func (s *Supervisor) setStateLocked(sess *chatSession, st State) {
	if sess.state == st {
		return
	}
	sess.state = st
	if s.onState == nil {
		return
	}
	select {
	case sess.states <- st:
	default:
		s.log.Debug("state listener lagging, dropping transition", "chat_id", sess.chatID, "state", st)
	}
}

func (s *Supervisor) receive(sess *chatSession, args []json.RawMessage) {
	if len(args) == 0 {
		s.log.Warn("ReceiveMessage without payload", "chat_id", sess.chatID)
		return
	}

	var payload domain.MessagePayload
	if err := sonic.Unmarshal(args[0], &payload); err != nil {
		s.log.Warn("bad ReceiveMessage payload", "chat_id", sess.chatID, "error", err)
		return
	}
	evt, err := payload.ToEvent()
	if err != nil {
		s.log.Warn("bad ReceiveMessage payload", "chat_id", sess.chatID, "error", err)
		return
	}
	if evt.ChatID != sess.chatID {
		s.log.Warn("dropping message for another chat", "chat_id", sess.chatID, "event_chat_id", evt.ChatID)
		return
	}

	select {
	case sess.inbound <- evt:
	case <-sess.done:
	}
}

// dispatch delivers inbound events and state transitions of one session, in
// arrival order, until the session is torn down.
func (s *Supervisor) dispatch(sess *chatSession) {
	for {
		select {
		case evt := <-sess.inbound:
			s.fanOut(sess.chatID, evt)
		case st := <-sess.states:
			s.onState(sess.chatID, st)
		case <-sess.done:
			s.drainStates(sess)
			return
		}
	}
}

func (s *Supervisor) drainStates(sess *chatSession) {
	for {
		select {
		case st := <-sess.states:
			s.onState(sess.chatID, st)
		default:
			return
		}
	}
}

func (s *Supervisor) fanOut(chatID domain.ChatID, evt domain.InboundEvent) {
	s.subMu.RLock()
	fns := make([]func(domain.InboundEvent), 0, len(s.subs[chatID]))
	for _, fn := range s.subs[chatID] {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}

func newChatSession(chatID domain.ChatID) *chatSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &chatSession{
		chatID:  chatID,
		state:   Idle,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		inbound: make(chan domain.InboundEvent, inboundBuffer),
		states:  make(chan State, stateBuffer),
	}
}

func stopTransport(tr domain.Transport) error {
	if tr == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return tr.Stop(ctx)
}
