package mocks

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

// Invocation records one call made through MockTransport.Invoke.
type Invocation struct {
	Method string
	Args   []any
}

// MockTransport is a mock implementation of domain.Transport.
// Start fetches a token from Tokens when set, so an empty credential fails
// the start the same way the hub transport does.
type MockTransport struct {
	ChatID domain.ChatID
	Tokens domain.TokenProvider

	StartFunc  func(ctx context.Context) error
	InvokeFunc func(ctx context.Context, method string, args ...any) error

	mu            sync.Mutex
	handlers      map[string][]domain.EventHandler
	closeHandlers []func(error)
	invocations   []Invocation
	started       bool
	stopped       bool
}

// Start mocks the Start method
func (m *MockTransport) Start(ctx context.Context) error {
	if m.Tokens != nil {
		tok, err := m.Tokens.Token(ctx)
		if err != nil {
			return err
		}
		if tok == "" {
			return domain.ErrCredentialMissing
		}
	}
	if m.StartFunc != nil {
		if err := m.StartFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

// Invoke mocks the Invoke method
func (m *MockTransport) Invoke(ctx context.Context, method string, args ...any) error {
	m.mu.Lock()
	m.invocations = append(m.invocations, Invocation{Method: method, Args: args})
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, method, args...)
	}
	return nil
}

// On mocks the On method
func (m *MockTransport) On(event string, handler domain.EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string][]domain.EventHandler)
	}
	m.handlers[event] = append(m.handlers[event], handler)
}

// OnClose mocks the OnClose method
func (m *MockTransport) OnClose(handler func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeHandlers = append(m.closeHandlers, handler)
}

// Stop mocks the Stop method. It does not fire close handlers.
func (m *MockTransport) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// Emit delivers an invocation from the "server". Each argument is marshalled
// to JSON first.
func (m *MockTransport) Emit(event string, args ...any) error {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		raw = append(raw, b)
	}

	m.mu.Lock()
	handlers := append([]domain.EventHandler(nil), m.handlers[event]...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(raw)
	}
	return nil
}

// Drop simulates the connection ending. A nil err is a clean close.
func (m *MockTransport) Drop(err error) {
	m.mu.Lock()
	handlers := slices.Clone(m.closeHandlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}

func (m *MockTransport) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *MockTransport) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Live reports a transport that started and was not stopped.
func (m *MockTransport) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.stopped
}

func (m *MockTransport) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invocation(nil), m.invocations...)
}

// MockTransportFactory is a mock implementation of domain.TransportFactory.
// StartFunc, when set, decides the outcome of every Start; n counts the
// transports built so far, starting at 1.
type MockTransportFactory struct {
	StartFunc  func(chatID domain.ChatID, n int) error
	InvokeFunc func(ctx context.Context, method string, args ...any) error

	mu         sync.Mutex
	transports []*MockTransport
}

// NewTransport mocks the NewTransport method
func (f *MockTransportFactory) NewTransport(chatID domain.ChatID, tokens domain.TokenProvider) domain.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.transports) + 1
	t := &MockTransport{
		ChatID:     chatID,
		Tokens:     tokens,
		InvokeFunc: f.InvokeFunc,
	}
	if f.StartFunc != nil {
		start := f.StartFunc
		t.StartFunc = func(ctx context.Context) error {
			return start(chatID, n)
		}
	}
	f.transports = append(f.transports, t)
	return t
}

// Transports returns every transport built so far, oldest first.
func (f *MockTransportFactory) Transports() []*MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockTransport(nil), f.transports...)
}

// Last returns the most recently built transport, or nil.
func (f *MockTransportFactory) Last() *MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

// LiveCount counts transports that started and were not stopped.
func (f *MockTransportFactory) LiveCount() int {
	count := 0
	for _, t := range f.Transports() {
		if t.Live() {
			count++
		}
	}
	return count
}
