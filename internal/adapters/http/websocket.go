package httpadapter

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID := domain.ChatID(r.URL.Query().Get("chatId"))
	if chatID == "" {
		badRequest(w, "chatId is required")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newServerConn(chatID, s.hub, s.log)
	go s.writePump(ws, c)

	ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket read failed", "error", err)
			}
			break
		}
		if err := c.process(r.Context(), data); err != nil {
			c.log.Debug("closing hub connection", "reason", err)
			break
		}
	}
	c.close()
}

// writePump owns every write to ws. It flushes queued records before
// closing so a rejected handshake still reaches the client.
func (s *Server) writePump(ws *websocket.Conn, c *serverConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	ping, _ := hubproto.Encode(hubproto.Ping())

	for {
		select {
		case data := <-c.out:
			if err := write(ws, c.drain(data)); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := write(ws, ping); err != nil {
				c.close()
				return
			}
		case <-c.done:
			if data := c.drain(nil); len(data) > 0 {
				_ = write(ws, data)
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func write(ws *websocket.Conn, data []byte) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}
