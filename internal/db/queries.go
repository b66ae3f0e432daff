package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Chat struct {
	ID           string
	Title        string
	CreatedAt    int64
	UpdatedAt    int64
	MessageCount int64
}

type Message struct {
	Seq         int64
	ID          string
	ChatID      string
	Role        string
	Content     string
	ImagesJson  sql.NullString
	SourcesJson sql.NullString
	CreatedAt   int64
}

const upsertChat = `
INSERT INTO chats (id, title, created_at, updated_at)
VALUES (?1, ?2, ?3, ?3)
ON CONFLICT(id) DO UPDATE SET
    title = CASE WHEN chats.title = '' THEN excluded.title ELSE chats.title END,
    updated_at = excluded.updated_at
`

type UpsertChatParams struct {
	ID    string
	Title string
	Now   int64
}

func (q *Queries) UpsertChat(ctx context.Context, arg UpsertChatParams) error {
	_, err := q.db.ExecContext(ctx, upsertChat, arg.ID, arg.Title, arg.Now)
	return err
}

const updateChatTitle = `UPDATE chats SET title = ?2, updated_at = ?3 WHERE id = ?1`

type UpdateChatTitleParams struct {
	ID    string
	Title string
	Now   int64
}

func (q *Queries) UpdateChatTitle(ctx context.Context, arg UpdateChatTitleParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateChatTitle, arg.ID, arg.Title, arg.Now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const chatColumns = `
SELECT c.id, c.title, c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id) AS message_count
FROM chats c
`

func scanChat(row interface{ Scan(...any) error }) (Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount)
	return c, err
}

func (q *Queries) GetChat(ctx context.Context, id string) (Chat, error) {
	return scanChat(q.db.QueryRowContext(ctx, chatColumns+`WHERE c.id = ?1`, id))
}

type ListChatsParams struct {
	Limit  int64
	Offset int64
}

func (q *Queries) ListChats(ctx context.Context, arg ListChatsParams) ([]Chat, error) {
	rows, err := q.db.QueryContext(ctx, chatColumns+`ORDER BY c.updated_at DESC, c.id LIMIT ?1 OFFSET ?2`, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) CountChats(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}

func (q *Queries) DeleteChat(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertMessage = `
INSERT INTO messages (id, chat_id, role, content, images_json, sources_json, created_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)
`

type InsertMessageParams struct {
	ID          string
	ChatID      string
	Role        string
	Content     string
	ImagesJson  sql.NullString
	SourcesJson sql.NullString
	CreatedAt   int64
}

func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	_, err := q.db.ExecContext(ctx, insertMessage,
		arg.ID, arg.ChatID, arg.Role, arg.Content, arg.ImagesJson, arg.SourcesJson, arg.CreatedAt)
	return err
}

const messageColumns = `
SELECT seq, id, chat_id, role, content, images_json, sources_json, created_at
FROM messages
`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(&m.Seq, &m.ID, &m.ChatID, &m.Role, &m.Content, &m.ImagesJson, &m.SourcesJson, &m.CreatedAt)
	return m, err
}

// GetMessagesByChat returns the newest limit messages of a chat, oldest
// first. A limit <= 0 returns all of them.
func (q *Queries) GetMessagesByChat(ctx context.Context, chatID string, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT * FROM (`+messageColumns+`WHERE chat_id = ?1 ORDER BY seq DESC LIMIT ?2) ORDER BY seq ASC`,
		chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (q *Queries) GetLastMessage(ctx context.Context, chatID string) (Message, error) {
	return scanMessage(q.db.QueryRowContext(ctx, messageColumns+`WHERE chat_id = ?1 ORDER BY seq DESC LIMIT 1`, chatID))
}

func (q *Queries) UpdateMessageImages(ctx context.Context, id string, imagesJSON sql.NullString) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE messages SET images_json = ?2 WHERE id = ?1`, id, imagesJSON)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
