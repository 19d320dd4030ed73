package httpadapter

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/relay"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

const (
	HubPath = "/chathub"

	maxBodyBytes = 1 << 20
)

type Options struct {
	AllowedOrigins []string
	// PingInterval spaces the keep-alive pings on websocket connections.
	PingInterval time.Duration
	// PollTimeout bounds how long a long polling GET waits for frames.
	PollTimeout time.Duration
}

func OptionsFromConfig(cfg *config.HubConfig) Options {
	return Options{
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
		PollTimeout:    cfg.PollTimeout,
	}
}

type Server struct {
	hub      *relay.Hub
	opts     Options
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu    sync.Mutex
	polls map[string]*serverConn
}

func NewServer(hub *relay.Hub, opts Options) http.Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 20 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		hub:   hub,
		opts:  opts,
		log:   observability.Component("http"),
		polls: make(map[string]*serverConn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(requireBearer)

		// HubPath: websocket upgrade or long polling GET/POST/DELETE ?id=
		r.Get(HubPath, s.handleHub)
		r.Post(HubPath, s.handlePollSend)
		r.Delete(HubPath, s.handlePollClose)
		r.Post(HubPath+"/negotiate", s.handleNegotiate)

		r.Post("/message", s.handleSaveMessage)
		r.Get("/message/{chatId}", s.handleListMessages)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHub(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}
	if r.URL.Query().Get("id") != "" {
		s.handlePoll(w, r)
		return
	}
	badRequest(w, "websocket upgrade or connection id required")
}

// ─────────────────────────────────────────────
// REST message store
// ─────────────────────────────────────────────

func (s *Server) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}

	var req domain.MessagePayload
	if err := sonic.Unmarshal(body, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	evt, err := s.hub.SaveMessage(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.PayloadFromEvent(*evt))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := domain.ChatID(chi.URLParam(r, "chatId"))

	msgs, err := s.hub.History(r.Context(), chatID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]domain.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, domain.PayloadFromEvent(*m))
	}
	writeJSON(w, http.StatusOK, out)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	switch {
	case errors.Is(err, domain.ErrInvalidInput) && errors.As(err, &de):
		badRequest(w, de.UserMessage())
	case errors.Is(err, domain.ErrInvalidInput):
		badRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		notFound(w, err.Error())
	default:
		internalError(w, r, err)
	}
}
