package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"makoto/internal/stream"
)

const (
	pathChatStream     = "/api/chat/stream"
	pathChatCompletion = "/api/chat/completion"
	pathChats          = "/api/chats"
)

// StreamMessage posts req to the streaming endpoint and feeds the response
// body through a stream.Decoder, delivering every event to h as it
// arrives. It returns the chat id from the Done frame, or "" if the stream
// ended without one.
//
// A non-2xx status fails before any event is delivered. A connection
// failure mid-stream returns a *TransportError; events already delivered
// are not rolled back. The request is never retried.
func (c *Client) StreamMessage(ctx context.Context, req *StreamRequest, h stream.Handler) (string, error) {
	body := *req
	body.Stream = true

	resp, err := c.do(ctx, http.MethodPost, pathChatStream, nil, &body, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	dec := stream.NewDecoder(h, stream.WithDiagnostics(func(d stream.Diagnostic) {
		slog.Debug("dropped stream frame", "reason", d.Reason.String(), "line", d.Line, "error", d.Err)
	}))
	if _, err := dec.ReadFrom(resp.Body); err != nil {
		return "", &TransportError{Method: http.MethodPost, Path: pathChatStream, Err: err}
	}

	chatID, ok := dec.ChatID()
	if !ok {
		slog.Warn("stream ended without done frame", "path", pathChatStream)
	}
	return chatID, nil
}

// SendMessage asks for a complete, non-streamed answer.
func (c *Client) SendMessage(ctx context.Context, req *StreamRequest) (*ChatMessage, error) {
	body := *req
	body.Stream = false

	var msg ChatMessage
	if err := c.sendJSON(ctx, http.MethodPost, pathChatCompletion, nil, &body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) ListChats(ctx context.Context, offset, limit int) (*GetChatsResponse, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var out GetChatsResponse
	if err := c.getJSON(ctx, pathChats, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*ChatDetail, error) {
	var out ChatDetail
	if err := c.getJSON(ctx, pathChats+"/"+url.PathEscape(chatID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.sendJSON(ctx, http.MethodDelete, pathChats+"/"+url.PathEscape(chatID), nil, nil, nil)
}
