package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

type wsLink struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (l *wsLink) name() string { return "websockets" }

func (l *wsLink) open(ctx context.Context) error {
	conn, resp, err := l.dialer.DialContext(ctx, l.url, l.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial: %w (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	l.conn = conn
	return nil
}

func (l *wsLink) send(ctx context.Context, data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) receive(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := l.conn.ReadMessage()
	return data, err
}

func (l *wsLink) close() error {
	if l.conn == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		err = l.conn.Close()
	})
	return err
}
