package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	httpadapter "github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/http"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/hub"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/storage/memory"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/relay"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain/mocks"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

func newDevHub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httpadapter.NewServer(relay.NewHub(memory.NewMessageStore()), httpadapter.Options{
		PingInterval: 50 * time.Millisecond,
		PollTimeout:  100 * time.Millisecond,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func newFactory(t *testing.T, hubURL string, mode config.TransportMode) *hub.Factory {
	t.Helper()
	f, err := hub.NewFactory(hub.Options{
		HubURL:           hubURL,
		Mode:             mode,
		HandshakeTimeout: 2 * time.Second,
		ServerTimeout:    2 * time.Second,
		RequestTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	return f
}

func TestSendAndReceive(t *testing.T) {
	for _, mode := range []config.TransportMode{config.TransportWebSockets, config.TransportLongPolling, config.TransportAuto} {
		t.Run(string(mode), func(t *testing.T) {
			ts := newDevHub(t)
			f := newFactory(t, ts.URL+httpadapter.HubPath, mode)

			conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{})
			received := make(chan domain.MessagePayload, 1)
			conn.On(relay.ReceiveMessageMethod, func(args []json.RawMessage) {
				var p domain.MessagePayload
				if err := json.Unmarshal(args[0], &p); err == nil {
					received <- p
				}
			})

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			if err := conn.Start(ctx); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer conn.Stop(context.Background())

			if err := conn.Invoke(ctx, relay.SendMessageMethod, "chat-1", "u1", "hello", nil, nil, 0); err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}

			select {
			case p := <-received:
				if p.Content != "hello" || p.SenderID != "u1" {
					t.Fatalf("unexpected payload: %+v", p)
				}
			case <-ctx.Done():
				t.Fatalf("ReceiveMessage never arrived")
			}
		})
	}
}

func TestInvokeRejectedByHub(t *testing.T) {
	ts := newDevHub(t)
	f := newFactory(t, ts.URL+httpadapter.HubPath, config.TransportWebSockets)

	conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{})
	ctx := context.Background()
	if err := conn.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer conn.Stop(ctx)

	// connection belongs to chat-1
	if err := conn.Invoke(ctx, relay.SendMessageMethod, "chat-2", "u1", "hello", nil, nil, 0); err == nil {
		t.Fatalf("expected the hub to reject the invocation")
	}
}

func TestStartWithoutToken(t *testing.T) {
	ts := newDevHub(t)
	f := newFactory(t, ts.URL+httpadapter.HubPath, config.TransportAuto)

	conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{
		TokenFunc: func(ctx context.Context) (string, error) { return "", nil },
	})
	if err := conn.Start(context.Background()); !errors.Is(err, domain.ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
}

func TestStartAgainstDeadHub(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL + httpadapter.HubPath
	ts.Close()

	f := newFactory(t, url, config.TransportAuto)
	conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{})

	closed := make(chan error, 1)
	conn.OnClose(func(err error) { closed <- err })

	if err := conn.Start(context.Background()); !errors.Is(err, domain.ErrConnectFailure) {
		t.Fatalf("expected ErrConnectFailure, got %v", err)
	}
	select {
	case err := <-closed:
		t.Fatalf("close handlers must not fire for a failed start, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopReportsCleanClose(t *testing.T) {
	ts := newDevHub(t)
	f := newFactory(t, ts.URL+httpadapter.HubPath, config.TransportLongPolling)

	conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{})
	closed := make(chan error, 1)
	conn.OnClose(func(err error) { closed <- err })

	ctx := context.Background()
	if err := conn.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = conn.Stop(ctx)

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("expected a clean close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("close handler not called")
	}

	if err := conn.Invoke(ctx, relay.SendMessageMethod); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after Stop, got %v", err)
	}
}

// droppingHub completes the handshake and then cuts the socket.
func droppingHub(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		resp, _ := hubproto.Encode(hubproto.HandshakeResponse{})
		_ = ws.WriteMessage(websocket.TextMessage, resp)
		time.Sleep(50 * time.Millisecond)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestDropReportsTransientError(t *testing.T) {
	ts := droppingHub(t)
	f := newFactory(t, ts.URL, config.TransportWebSockets)

	conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{})
	closed := make(chan error, 1)
	conn.OnClose(func(err error) { closed <- err })

	if err := conn.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-closed:
		if !errors.Is(err, domain.ErrTransientDrop) {
			t.Fatalf("expected ErrTransientDrop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("close handler not called")
	}
}

func TestServerCloseFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, _, _ = ws.ReadMessage()
		resp, _ := hubproto.Encode(hubproto.HandshakeResponse{})
		bye, _ := hubproto.Encode(hubproto.CloseFrame("", false))
		_ = ws.WriteMessage(websocket.TextMessage, append(resp, bye...))
		_, _, _ = ws.ReadMessage()
	}))
	defer ts.Close()

	f := newFactory(t, ts.URL, config.TransportWebSockets)
	conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{})
	closed := make(chan error, 1)
	conn.OnClose(func(err error) { closed <- err })

	if err := conn.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("expected a clean close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("close handler not called")
	}
}

func TestNewFactoryValidatesOptions(t *testing.T) {
	if _, err := hub.NewFactory(hub.Options{HubURL: "ftp://example.com/hub"}); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := hub.NewFactory(hub.Options{HubURL: "http://example.com/hub", Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected mode error")
	}
}

func TestStopNotifiesEveryCloseHandler(t *testing.T) {
	ts := newDevHub(t)
	f := newFactory(t, ts.URL+httpadapter.HubPath, config.TransportWebSockets)

	conn := f.NewTransport("chat-1", &mocks.MockTokenProvider{})
	first := make(chan error, 1)
	second := make(chan error, 1)
	conn.OnClose(func(err error) { first <- err })
	conn.OnClose(func(err error) { second <- err })

	ctx := context.Background()
	if err := conn.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = conn.Stop(ctx)

	for i, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatalf("handler %d: expected a clean close, got %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("handler %d not called", i)
		}
	}
}
