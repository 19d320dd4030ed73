package hub

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/gorilla/websocket"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

// Options configures every connection built by a Factory.
type Options struct {
	HubURL           string
	Mode             config.TransportMode
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ServerTimeout    time.Duration
	RequestTimeout   time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HubURL:           cfg.HubURL,
		Mode:             cfg.Transport,
		HandshakeTimeout: cfg.HandshakeTimeout,
		PingInterval:     cfg.PingInterval,
		ServerTimeout:    cfg.ServerTimeout,
		RequestTimeout:   cfg.RequestTimeout,
	}
}

func (o *Options) setDefaults() {
	if o.Mode == "" {
		o.Mode = config.TransportAuto
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 15 * time.Second
	}
	if o.ServerTimeout <= 0 {
		o.ServerTimeout = 30 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
}

// Factory builds hub connections; it implements domain.TransportFactory.
type Factory struct {
	opts   Options
	base   *url.URL
	ws     *websocket.Dialer
	client *client.Client
	log    *slog.Logger
}

func NewFactory(opts Options) (*Factory, error) {
	opts.setDefaults()

	base, err := url.Parse(opts.HubURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid hub URL %q", opts.HubURL)
	}
	switch base.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported hub URL scheme %q", base.Scheme)
	}

	switch opts.Mode {
	case config.TransportAuto, config.TransportWebSockets, config.TransportLongPolling:
	default:
		return nil, fmt.Errorf("unknown transport mode %q", opts.Mode)
	}

	c, err := client.NewClient(
		client.WithDialTimeout(opts.HandshakeTimeout),
		client.WithMaxIdleConnDuration(60*time.Second),
		client.WithDialer(standard.NewDialer()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Factory{
		opts: opts,
		base: base,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		client: c,
		log:    observability.Component("hub"),
	}, nil
}

func (f *Factory) NewTransport(chatID domain.ChatID, tokens domain.TokenProvider) domain.Transport {
	var dialers []linkDialer
	if f.opts.Mode != config.TransportLongPolling {
		dialers = append(dialers, func(token string) (link, error) {
			return f.newWebSocketLink(chatID, token), nil
		})
	}
	if f.opts.Mode != config.TransportWebSockets {
		dialers = append(dialers, func(token string) (link, error) {
			return f.newLongPollingLink(chatID, token), nil
		})
	}
	return newConn(chatID, tokens, f.opts, dialers, f.log.With("chat_id", chatID))
}

// hubURL adds the chat id and the token to the hub URL. The token also
// travels in the Authorization header; the query copy serves clients that
// cannot set headers on an upgrade.
func (f *Factory) hubURL(chatID domain.ChatID, token string) *url.URL {
	u := *f.base
	q := u.Query()
	q.Set("chatId", string(chatID))
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return &u
}

func (f *Factory) newWebSocketLink(chatID domain.ChatID, token string) *wsLink {
	u := f.hubURL(chatID, token)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return &wsLink{url: u.String(), header: header, dialer: f.ws}
}

func (f *Factory) newLongPollingLink(chatID domain.ChatID, token string) *lpLink {
	u := f.hubURL(chatID, token)
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return &lpLink{
		client:         f.client,
		base:           u,
		token:          token,
		requestTimeout: f.opts.RequestTimeout,
	}
}
