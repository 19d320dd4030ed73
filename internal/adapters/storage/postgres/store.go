package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id           TEXT PRIMARY KEY,
    chat_id      TEXT NOT NULL,
    sender_id    TEXT NOT NULL,
    content      TEXT NOT NULL DEFAULT '',
    media_url    TEXT,
    duration     DOUBLE PRECISION,
    message_type INTEGER NOT NULL DEFAULT 0,
    is_read      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_chat_created_idx ON chat_messages (chat_id, created_at);
`

type Store struct {
	db *sql.DB
}

// Open connects, checks the connection and creates the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for Postgres store")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle; the schema must already exist.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating chat_messages: %w", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, evt *domain.InboundEvent) error {
	if evt.ID == "" {
		return domain.NewInvalidInputError("message id is required")
	}

	var mediaURL sql.NullString
	if evt.MediaURL != nil {
		mediaURL = sql.NullString{String: *evt.MediaURL, Valid: true}
	}
	var duration sql.NullFloat64
	if evt.Duration != nil {
		duration = sql.NullFloat64{Float64: *evt.Duration, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, content, media_url, duration, message_type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(evt.ID), string(evt.ChatID), string(evt.SenderID), evt.Content,
		mediaURL, duration, int(evt.MessageType), evt.IsRead, evt.CreatedDate.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.NewInvalidInputError(fmt.Sprintf("message %s already exists", evt.ID))
		}
		return fmt.Errorf("postgres AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesByChat returns the latest limit messages, oldest first.
func (s *Store) GetMessagesByChat(ctx context.Context, chatID domain.ChatID, limit int) ([]*domain.InboundEvent, error) {
	query := `
		SELECT id, sender_id, content, media_url, duration, message_type, is_read, created_at
		FROM (
			SELECT * FROM chat_messages WHERE chat_id = $1 ORDER BY created_at DESC LIMIT $2
		) latest
		ORDER BY created_at ASC`

	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.db.QueryContext(ctx, query, string(chatID), lim)
	if err != nil {
		return nil, fmt.Errorf("postgres GetMessagesByChat: %w", err)
	}
	defer rows.Close()

	var out []*domain.InboundEvent
	for rows.Next() {
		var (
			id, senderID, content string
			mediaURL              sql.NullString
			duration              sql.NullFloat64
			messageType           int
			isRead                bool
			createdAt             time.Time
		)
		if err := rows.Scan(&id, &senderID, &content, &mediaURL, &duration, &messageType, &isRead, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat_messages: %w", err)
		}

		evt := &domain.InboundEvent{
			ID:          domain.MessageID(id),
			ChatID:      chatID,
			SenderID:    domain.UserID(senderID),
			Content:     content,
			MessageType: domain.MessageType(messageType),
			CreatedDate: createdAt,
			IsRead:      isRead,
		}
		if mediaURL.Valid {
			v := mediaURL.String
			evt.MediaURL = &v
		}
		if duration.Valid {
			v := duration.Float64
			evt.Duration = &v
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres GetMessagesByChat: %w", err)
	}
	return out, nil
}
