package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"makoto/internal/db"
	"makoto/internal/stream"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a chat or message does not exist.
var ErrNotFound = errors.New("history: not found")

const titleRunes = 30

type Chat struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

type Message struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	Images    []stream.GeneratedImage
	Sources   []stream.Source
	CreatedAt time.Time
}

type Store struct {
	q   *db.Queries
	now func() time.Time
}

func NewStore(database *db.DB) *Store {
	return &Store{q: database.Queries(), now: time.Now}
}

// Title derives a chat title from its first user message.
func Title(message string) string {
	r := []rune(message)
	if len(r) <= titleRunes {
		return message
	}
	return string(r[:titleRunes]) + "..."
}

// EnsureChat creates the chat if needed and bumps its updated time. An
// existing non-empty title is kept.
func (s *Store) EnsureChat(ctx context.Context, chatID, title string) error {
	return s.q.UpsertChat(ctx, db.UpsertChatParams{
		ID:    chatID,
		Title: title,
		Now:   s.now().UnixMilli(),
	})
}

func (s *Store) RenameChat(ctx context.Context, chatID, title string) error {
	n, err := s.q.UpdateChatTitle(ctx, db.UpdateChatTitleParams{ID: chatID, Title: title, Now: s.now().UnixMilli()})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage stores msg under its chat, filling in ID and CreatedAt when
// they are empty. The chat must exist.
func (s *Store) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	images, err := marshalNullable(msg.Images)
	if err != nil {
		return Message{}, fmt.Errorf("encoding images: %w", err)
	}
	sources, err := marshalNullable(msg.Sources)
	if err != nil {
		return Message{}, fmt.Errorf("encoding sources: %w", err)
	}

	if err := s.q.InsertMessage(ctx, db.InsertMessageParams{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		Role:        msg.Role,
		Content:     msg.Content,
		ImagesJson:  images,
		SourcesJson: sources,
		CreatedAt:   msg.CreatedAt.UnixMilli(),
	}); err != nil {
		return Message{}, err
	}
	if err := s.EnsureChat(ctx, msg.ChatID, ""); err != nil {
		slog.Warn("failed to bump chat", "chat_id", msg.ChatID, "error", err)
	}
	return msg, nil
}

func (s *Store) SetMessageImages(ctx context.Context, messageID string, images []stream.GeneratedImage) error {
	data, err := marshalNullable(images)
	if err != nil {
		return err
	}
	n, err := s.q.UpdateMessageImages(ctx, messageID, data)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Messages returns the newest limit messages of a chat in chronological
// order. limit <= 0 means all.
func (s *Store) Messages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	rows, err := s.q.GetMessagesByChat(ctx, chatID, int64(limit))
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, messageFromRow(row))
	}
	return msgs, nil
}

func (s *Store) LastMessage(ctx context.Context, chatID string) (Message, error) {
	row, err := s.q.GetLastMessage(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return messageFromRow(row), nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (Chat, error) {
	row, err := s.q.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, err
	}
	return chatFromRow(row), nil
}

// ListChats returns a page of chats, most recently updated first, and the
// total number of chats.
func (s *Store) ListChats(ctx context.Context, offset, limit int) ([]Chat, int, error) {
	rows, err := s.q.ListChats(ctx, db.ListChatsParams{Limit: int64(limit), Offset: int64(offset)})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.q.CountChats(ctx)
	if err != nil {
		return nil, 0, err
	}
	chats := make([]Chat, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, chatFromRow(row))
	}
	return chats, int(total), nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	n, err := s.q.DeleteChat(ctx, chatID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func chatFromRow(row db.Chat) Chat {
	return Chat{
		ID:           row.ID,
		Title:        row.Title,
		CreatedAt:    time.UnixMilli(row.CreatedAt),
		UpdatedAt:    time.UnixMilli(row.UpdatedAt),
		MessageCount: int(row.MessageCount),
	}
}

func messageFromRow(row db.Message) Message {
	m := Message{
		ID:        row.ID,
		ChatID:    row.ChatID,
		Role:      row.Role,
		Content:   row.Content,
		CreatedAt: time.UnixMilli(row.CreatedAt),
	}
	if row.ImagesJson.Valid {
		if err := json.Unmarshal([]byte(row.ImagesJson.String), &m.Images); err != nil {
			slog.Warn("skipping invalid images JSON", "message_id", row.ID, "error", err)
		}
	}
	if row.SourcesJson.Valid {
		if err := json.Unmarshal([]byte(row.SourcesJson.String), &m.Sources); err != nil {
			slog.Warn("skipping invalid sources JSON", "message_id", row.ID, "error", err)
		}
	}
	return m
}

func marshalNullable[T any](v []T) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
