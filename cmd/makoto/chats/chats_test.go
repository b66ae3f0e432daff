package chats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"makoto/internal/api"
	"makoto/internal/stream"
)

func TestPrintChats(t *testing.T) {
	var buf bytes.Buffer
	printChats(&buf, &api.GetChatsResponse{
		Chats: []api.ChatRoom{{RoomID: "c1", Title: "hello", MessageCount: 2, UpdatedAt: "not-a-time"}},
		Total: 1, Page: 1, TotalPages: 1,
	})
	assert.Equal(t, "ID  TITLE  MESSAGES  UPDATED\nc1  hello  2         not-a-time\npage 1 of 1 (1 chats)\n", buf.String())
}

func TestPrintDetail(t *testing.T) {
	var buf bytes.Buffer
	printDetail(&buf, &api.ChatDetail{
		ChatRoom: api.ChatRoom{RoomID: "c1", Title: "hello"},
		Messages: []api.ChatMessage{{
			Role:         api.RoleAssistant,
			Content:      "hi",
			Timestamp:    "t",
			CrawlSources: []stream.Source{{URL: "https://a"}},
		}},
	})
	assert.Equal(t, "c1  hello\n\nassistant (t):\nhi\n  source: https://a\n\n", buf.String())
}
