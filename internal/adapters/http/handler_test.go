package httpadapter_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	httpadapter "github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/http"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/storage/memory"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/relay"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	hub := relay.NewHub(memory.NewMessageStore())
	return httpadapter.NewServer(hub, httpadapter.Options{
		PingInterval: time.Second,
		PollTimeout:  100 * time.Millisecond,
	})
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMessageEndpointsRequireToken(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/message/chat-1", nil)
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/message/chat-1?access_token=abc", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("query token must be accepted, got %d", w.Code)
	}
}

func TestSaveAndListMessages(t *testing.T) {
	srv := newTestServer(t)

	body := []byte(`{"chatId":"chat-1","senderId":"u1","content":"hello","messageType":0,"createdDate":"2024-05-01T12:00:00Z"}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(body)))
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", w.Code, w.Body.String())
	}

	var created domain.MessagePayload
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected a server id")
	}

	req = authed(httptest.NewRequest(http.MethodGet, "/message/chat-1", nil))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var list []domain.MessagePayload
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID || list[0].Content != "hello" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestSaveMessageRejectsInvalidBody(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{`not json`, `{"chatId":"chat-1","content":"x"}`} {
		req := authed(httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body)))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

// ─────────────────────────────────────────────
// Hub endpoint
// ─────────────────────────────────────────────

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := hubproto.Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func handshake() hubproto.HandshakeRequest {
	return hubproto.HandshakeRequest{Protocol: hubproto.ProtocolName, Version: hubproto.ProtocolVersion}
}

func sendMessage(t *testing.T, id string) hubproto.Message {
	t.Helper()
	msg, err := hubproto.NewInvocation(id, relay.SendMessageMethod, "chat-1", "u1", "hello", nil, nil, 0)
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	return msg
}

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + httpadapter.HubPath + "?chatId=chat-1&access_token=tok"
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readFrames reads websocket messages until stop returns true for a frame.
func readFrames(t *testing.T, ws *websocket.Conn, stop func(hubproto.Message) bool) []hubproto.Message {
	t.Helper()
	var (
		frames []hubproto.Message
		buf    []byte
	)
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (got %d frames)", err, len(frames))
		}
		var records [][]byte
		records, buf = hubproto.Split(append(buf, data...))
		for _, r := range records {
			msg, err := hubproto.Decode(r)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Type == hubproto.TypePing {
				continue
			}
			frames = append(frames, msg)
			if stop(msg) {
				return frames
			}
		}
	}
}

func readHandshake(t *testing.T, ws *websocket.Conn) hubproto.HandshakeResponse {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read handshake: %v", err)
	}
	records, _ := hubproto.Split(data)
	if len(records) == 0 {
		t.Fatalf("no handshake record in %q", data)
	}
	var resp hubproto.HandshakeResponse
	if err := json.Unmarshal(records[0], &resp); err != nil {
		t.Fatalf("decode handshake: %v", err)
	}
	return resp
}

func TestWebSocketRelaysToSenderAndPeers(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t))
	defer ts.Close()

	sender := dialHub(t, ts)
	other := dialHub(t, ts)
	for _, ws := range []*websocket.Conn{sender, other} {
		if err := ws.WriteMessage(websocket.TextMessage, encode(t, handshake())); err != nil {
			t.Fatalf("write handshake: %v", err)
		}
		if resp := readHandshake(t, ws); resp.Error != "" {
			t.Fatalf("handshake rejected: %s", resp.Error)
		}
	}

	if err := sender.WriteMessage(websocket.TextMessage, encode(t, sendMessage(t, "1"))); err != nil {
		t.Fatalf("write invocation: %v", err)
	}

	frames := readFrames(t, sender, func(m hubproto.Message) bool { return m.Type == hubproto.TypeCompletion })
	if len(frames) != 2 || frames[0].Target != relay.ReceiveMessageMethod {
		t.Fatalf("expected ReceiveMessage then completion, got %+v", frames)
	}
	if frames[1].InvocationID != "1" || frames[1].Error != "" {
		t.Fatalf("unexpected completion: %+v", frames[1])
	}

	got := readFrames(t, other, func(m hubproto.Message) bool { return m.Type == hubproto.TypeInvocation })
	var payload domain.MessagePayload
	if err := json.Unmarshal(got[0].Arguments[0], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Content != "hello" || payload.SenderID != "u1" || payload.CreatedDate == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestWebSocketRejectsUnknownProtocol(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t))
	defer ts.Close()

	ws := dialHub(t, ts)
	bad := hubproto.HandshakeRequest{Protocol: "messagepack", Version: 1}
	if err := ws.WriteMessage(websocket.TextMessage, encode(t, bad)); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	if resp := readHandshake(t, ws); resp.Error == "" {
		t.Fatalf("expected a handshake error")
	}
}

func TestWebSocketRequiresChatID(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t))
	defer ts.Close()

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + httpadapter.HubPath + "?access_token=tok"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestLongPollingRoundTrip(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t))
	defer ts.Close()

	do := func(method, url string, body []byte) (int, []byte) {
		t.Helper()
		req, _ := http.NewRequest(method, url, bytes.NewReader(body))
		authed(req)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, url, err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, data
	}

	status, body := do(http.MethodPost, ts.URL+httpadapter.HubPath+"/negotiate?chatId=chat-1", nil)
	if status != http.StatusOK {
		t.Fatalf("negotiate: expected 200, got %d", status)
	}
	var neg hubproto.NegotiateResponse
	if err := json.Unmarshal(body, &neg); err != nil || neg.ConnectionToken == "" {
		t.Fatalf("bad negotiate response %s: %v", body, err)
	}
	connURL := ts.URL + httpadapter.HubPath + "?id=" + neg.ConnectionToken

	if status, _ := do(http.MethodPost, connURL, encode(t, handshake())); status != http.StatusOK {
		t.Fatalf("send handshake: %d", status)
	}
	status, body = do(http.MethodGet, connURL, nil)
	if status != http.StatusOK || string(body) != "{}\x1e" {
		t.Fatalf("poll handshake: %d %q", status, body)
	}

	if status, _ := do(http.MethodPost, connURL, encode(t, sendMessage(t, "9"))); status != http.StatusOK {
		t.Fatalf("send invocation: %d", status)
	}

	var frames []hubproto.Message
	deadline := time.Now().Add(2 * time.Second)
	for len(frames) < 2 && time.Now().Before(deadline) {
		status, body = do(http.MethodGet, connURL, nil)
		if status != http.StatusOK {
			t.Fatalf("poll: %d", status)
		}
		records, _ := hubproto.Split(body)
		for _, r := range records {
			msg, _ := hubproto.Decode(r)
			frames = append(frames, msg)
		}
	}
	if len(frames) != 2 || frames[0].Target != relay.ReceiveMessageMethod || frames[1].InvocationID != "9" {
		t.Fatalf("unexpected frames: %+v", frames)
	}

	// an idle poll answers 200 with no body
	status, body = do(http.MethodGet, connURL, nil)
	if status != http.StatusOK || len(body) != 0 {
		t.Fatalf("idle poll: %d %q", status, body)
	}

	if status, _ := do(http.MethodDelete, connURL, nil); status != http.StatusAccepted {
		t.Fatalf("delete: %d", status)
	}
	if status, _ := do(http.MethodGet, connURL, nil); status != http.StatusNotFound {
		t.Fatalf("poll after delete: expected 404, got %d", status)
	}
}

func TestLongPollingCloseFrameEndsPoll(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t))
	defer ts.Close()

	post := func(url string, body []byte) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(authed(req))
		if err != nil {
			t.Fatalf("POST %s: %v", url, err)
		}
		return resp
	}

	resp := post(ts.URL+httpadapter.HubPath+"/negotiate?chatId=chat-1", nil)
	var neg hubproto.NegotiateResponse
	_ = json.NewDecoder(resp.Body).Decode(&neg)
	resp.Body.Close()
	connURL := ts.URL + httpadapter.HubPath + "?id=" + neg.ConnectionID

	post(connURL, encode(t, handshake())).Body.Close()
	post(connURL, encode(t, hubproto.CloseFrame("", false))).Body.Close()

	// first poll flushes the handshake response, the next one reports the end
	statuses := []int{}
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, connURL, nil)
		r, err := http.DefaultClient.Do(authed(req))
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		r.Body.Close()
		statuses = append(statuses, r.StatusCode)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusNoContent {
		t.Fatalf("unexpected poll statuses %v", statuses)
	}
}
