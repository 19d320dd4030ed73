package hub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

var errPollClosed = errors.New("long polling connection closed")

// lpLink is the long polling fallback: POST {hub}/negotiate for an id, then
// GET {hub}?id= to poll, POST {hub}?id= to send and DELETE {hub}?id= to close.
type lpLink struct {
	client         *client.Client
	base           *url.URL
	token          string
	requestTimeout time.Duration

	id     string
	closed atomic.Bool
}

func (l *lpLink) name() string { return "longpolling" }

func (l *lpLink) open(ctx context.Context) error {
	u := *l.base
	u.Path += "/negotiate"
	q := u.Query()
	q.Set("negotiateVersion", "1")
	u.RawQuery = q.Encode()

	status, body, err := l.do(ctx, consts.MethodPost, u.String(), nil)
	if err != nil {
		return fmt.Errorf("negotiate: %w", err)
	}
	if status != consts.StatusOK {
		return fmt.Errorf("negotiate failed (HTTP %d)", status)
	}

	var neg hubproto.NegotiateResponse
	if err := sonic.Unmarshal(body, &neg); err != nil {
		return fmt.Errorf("failed to unmarshal negotiate response: %w", err)
	}
	if neg.Error != "" {
		return fmt.Errorf("negotiate rejected: %s", neg.Error)
	}

	l.id = neg.ConnectionToken
	if l.id == "" {
		l.id = neg.ConnectionID
	}
	if l.id == "" {
		return errors.New("negotiate returned no connection id")
	}
	return nil
}

func (l *lpLink) send(ctx context.Context, data []byte) error {
	if l.closed.Load() {
		return errPollClosed
	}
	status, _, err := l.do(ctx, consts.MethodPost, l.connURL(), data)
	if err != nil {
		return err
	}
	if status != consts.StatusOK {
		return fmt.Errorf("send failed (HTTP %d)", status)
	}
	return nil
}

// receive runs one poll. 204 means the hub ended the connection.
func (l *lpLink) receive(ctx context.Context) ([]byte, error) {
	if l.closed.Load() {
		return nil, errPollClosed
	}
	status, body, err := l.do(ctx, consts.MethodGet, l.connURL(), nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case consts.StatusOK:
		return body, nil
	case consts.StatusNoContent:
		return nil, errPollClosed
	default:
		return nil, fmt.Errorf("poll failed (HTTP %d)", status)
	}
}

func (l *lpLink) close() error {
	if l.id == "" || !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.requestTimeout)
	defer cancel()
	_, _, err := l.do(ctx, consts.MethodDelete, l.connURL(), nil)
	return err
}

func (l *lpLink) connURL() string {
	u := *l.base
	q := u.Query()
	q.Set("id", l.id)
	u.RawQuery = q.Encode()
	return u.String()
}

func (l *lpLink) do(ctx context.Context, method, uri string, body []byte) (int, []byte, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.Set("Authorization", "Bearer "+l.token)
	if body != nil {
		req.Header.SetContentTypeBytes([]byte("text/plain; charset=utf-8"))
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(l.requestTimeout)
	}
	if err := l.client.DoDeadline(ctx, req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	out := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), out, nil
}
