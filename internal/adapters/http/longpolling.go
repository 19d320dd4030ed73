package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

// idleAfter is how long a long polling connection lives without a poll.
func (s *Server) idleAfter() time.Duration {
	return 2*s.opts.PollTimeout + 5*time.Second
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	chatID := domain.ChatID(r.URL.Query().Get("chatId"))
	if chatID == "" {
		badRequest(w, "chatId is required")
		return
	}

	c := newServerConn(chatID, s.hub, s.log)

	s.mu.Lock()
	s.polls[c.id] = c
	s.mu.Unlock()
	s.touch(c)

	writeJSON(w, http.StatusOK, hubproto.NegotiateResponse{
		ConnectionID:     c.id,
		ConnectionToken:  c.id,
		NegotiateVersion: 1,
		AvailableTransports: []hubproto.AvailableTransport{
			{Transport: "WebSockets", TransferFormats: []string{"Text"}},
			{Transport: "LongPolling", TransferFormats: []string{"Text"}},
		},
	})
}

// handlePollSend takes frames posted by the client.
func (s *Server) handlePollSend(w http.ResponseWriter, r *http.Request) {
	c, ok := s.pollConn(r)
	if !ok {
		notFound(w, "unknown connection id")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}
	// the connection may outlive this request
	ctx := context.WithoutCancel(r.Context())
	if err := c.process(ctx, body); err != nil {
		c.log.Debug("closing hub connection", "reason", err)
		c.close()
	}
	w.WriteHeader(http.StatusOK)
}

// handlePoll waits up to PollTimeout for queued frames. An empty 200 keeps
// the client polling; 204 tells it the connection is gone.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	c, ok := s.pollConn(r)
	if !ok {
		notFound(w, "unknown connection id")
		return
	}
	s.touch(c)

	timer := time.NewTimer(s.opts.PollTimeout)
	defer timer.Stop()

	var data []byte
	select {
	case first := <-c.out:
		data = c.drain(first)
	case <-c.done:
		data = c.drain(nil)
		if len(data) == 0 {
			s.forget(c)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case <-timer.C:
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePollClose(w http.ResponseWriter, r *http.Request) {
	c, ok := s.pollConn(r)
	if !ok {
		notFound(w, "unknown connection id")
		return
	}
	c.close()
	s.forget(c)
	c.stopIdle()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) pollConn(r *http.Request) (*serverConn, bool) {
	id := r.URL.Query().Get("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.polls[id]
	return c, ok
}

func (s *Server) forget(c *serverConn) {
	s.mu.Lock()
	delete(s.polls, c.id)
	s.mu.Unlock()
}

// touch re-arms the idle timer of a polling connection.
func (s *Server) touch(c *serverConn) {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if c.idle != nil {
		c.idle.Stop()
	}
	c.idle = time.AfterFunc(s.idleAfter(), func() {
		c.log.Info("long polling connection idle")
		c.close()
		s.forget(c)
	})
}

func (c *serverConn) stopIdle() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if c.idle != nil {
		c.idle.Stop()
	}
}
