package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makoto/internal/db"
	"makoto/internal/stream"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "makoto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	s := NewStore(database)
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "short question", Title("short question"))
	long := strings.Repeat("あ", 31)
	assert.Equal(t, strings.Repeat("あ", 30)+"...", Title(long))
	assert.Equal(t, strings.Repeat("x", 30), Title(strings.Repeat("x", 30)))
}

func TestStoreMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.EnsureChat(ctx, "c1", "first title"))
	_, err := s.AppendMessage(ctx, Message{ChatID: "c1", Role: "user", Content: "draw a cat"})
	require.NoError(t, err)
	reply, err := s.AppendMessage(ctx, Message{
		ChatID:  "c1",
		Role:    "assistant",
		Content: "here you go",
		Sources: []stream.Source{{URL: "https://a", Title: "A"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.ID)

	images := []stream.GeneratedImage{{URL: "https://img/cat.png", Prompt: "cat"}}
	require.NoError(t, s.SetMessageImages(ctx, reply.ID, images))

	msgs, err := s.Messages(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "draw a cat", msgs[0].Content)
	assert.Equal(t, "here you go", msgs[1].Content)
	assert.Equal(t, images, msgs[1].Images)
	assert.Equal(t, "A", msgs[1].Sources[0].Title)
	assert.Nil(t, msgs[0].Images)

	last, err := s.Messages(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "assistant", last[0].Role)

	lm, err := s.LastMessage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, reply.ID, lm.ID)

	chat, err := s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "first title", chat.Title)
	assert.Equal(t, 2, chat.MessageCount)
}

func TestStoreEnsureChatKeepsTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.EnsureChat(ctx, "c1", ""))
	require.NoError(t, s.EnsureChat(ctx, "c1", "named later"))
	require.NoError(t, s.EnsureChat(ctx, "c1", "ignored"))

	chat, err := s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "named later", chat.Title)

	require.NoError(t, s.RenameChat(ctx, "c1", "renamed"))
	chat, err = s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", chat.Title)

	assert.ErrorIs(t, s.RenameChat(ctx, "nope", "x"), ErrNotFound)
}

func TestStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.EnsureChat(ctx, id, "chat "+id))
	}
	// Touching a makes it the most recent.
	_, err := s.AppendMessage(ctx, Message{ChatID: "a", Role: "user", Content: "hi"})
	require.NoError(t, err)

	chats, total, err := s.ListChats(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, chats, 2)
	assert.Equal(t, "a", chats[0].ID)
	assert.Equal(t, "c", chats[1].ID)

	chats, _, err = s.ListChats(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "b", chats[0].ID)

	require.NoError(t, s.DeleteChat(ctx, "a"))
	assert.ErrorIs(t, s.DeleteChat(ctx, "a"), ErrNotFound)

	_, err = s.GetChat(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	msgs, err := s.Messages(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.LastMessage(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreAppendRequiresChat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.AppendMessage(ctx, Message{ChatID: "missing", Role: "user", Content: "x"})
	assert.Error(t, err)
	assert.ErrorIs(t, s.SetMessageImages(ctx, "missing", []stream.GeneratedImage{{URL: "u"}}), ErrNotFound)
}
