// Package rest talks to the REST message store behind the live hub.
package rest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

const (
	endpointMessage      = "/message"
	endpointChatMessages = "/message/%s"
)

// Gateway implements domain.PersistenceGateway over HTTP.
type Gateway struct {
	client  *client.Client
	server  string
	tokens  domain.TokenProvider
	timeout time.Duration
}

// NewGateway creates a gateway for the API at server. Requests carry the
// current token from tokens.
func NewGateway(server string, tokens domain.TokenProvider, timeout time.Duration) (*Gateway, error) {
	normalized, err := normalizeServerURL(server)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithMaxIdleConnDuration(60*time.Second),
		client.WithDialer(standard.NewDialer()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Gateway{
		client:  c,
		server:  normalized,
		tokens:  tokens,
		timeout: timeout,
	}, nil
}

// normalizeServerURL keeps scheme, host and path prefix, without a trailing slash.
func normalizeServerURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL")
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, strings.TrimSuffix(u.Path, "/")), nil
}

// SaveMessage posts the message. The server assigns the id.
func (g *Gateway) SaveMessage(ctx context.Context, msg *domain.OutboundMessage) error {
	body, err := sonic.Marshal(domain.PayloadFromOutbound(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	status, _, err := g.do(ctx, consts.MethodPost, g.server+endpointMessage, body)
	if err != nil {
		return err
	}
	if status != consts.StatusOK && status != consts.StatusCreated {
		return fmt.Errorf("save message failed (HTTP %d)", status)
	}
	return nil
}

// ListMessages fetches the stored history of a chat, oldest first.
func (g *Gateway) ListMessages(ctx context.Context, chatID domain.ChatID) ([]domain.InboundEvent, error) {
	uri := fmt.Sprintf(g.server+endpointChatMessages, url.PathEscape(string(chatID)))

	status, body, err := g.do(ctx, consts.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case consts.StatusOK:
	case consts.StatusNotFound:
		return nil, domain.NewNotFoundError("chat", string(chatID))
	default:
		return nil, fmt.Errorf("list messages failed (HTTP %d)", status)
	}

	var payloads []domain.MessagePayload
	if err := sonic.Unmarshal(body, &payloads); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	out := make([]domain.InboundEvent, 0, len(payloads))
	for _, p := range payloads {
		evt, err := p.ToEvent()
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", p.ID, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

func (g *Gateway) do(ctx context.Context, method, uri string, body []byte) (int, []byte, error) {
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrCredentialMissing, err)
	}
	if tok == "" {
		return 0, nil, domain.ErrCredentialMissing
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(g.timeout)
	}
	if err := g.client.DoDeadline(ctx, req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	out := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), out, nil
}
