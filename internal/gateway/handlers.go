package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"makoto/internal/agent"
	"makoto/internal/api"
	"makoto/internal/history"
	"makoto/internal/templates"
)

const (
	localUser        = "local"
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxBodyBytes     = 1 << 20
)

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxPageLimit)

	chats, total, err := s.deps.Store.ListChats(r.Context(), offset, limit)
	if err != nil {
		slog.Error("list chats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	resp := api.GetChatsResponse{
		Chats:      make([]api.ChatRoom, 0, len(chats)),
		Total:      total,
		Page:       offset/limit + 1,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
		HasMore:    offset+len(chats) < total,
	}
	for _, c := range chats {
		resp.Chats = append(resp.Chats, s.chatRoom(r.Context(), c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chat, err := s.deps.Store.GetChat(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		slog.Error("get chat failed", "chat_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}

	msgs, err := s.deps.Store.Messages(r.Context(), id, 0)
	if err != nil {
		slog.Error("load messages failed", "chat_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	detail := api.ChatDetail{
		ChatRoom: s.chatRoom(r.Context(), chat),
		Messages: make([]api.ChatMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, chatMessage(m))
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.deps.Store.DeleteChat(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		slog.Error("delete chat failed", "chat_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "chat deleted"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, errNoLLM.Error())
		return
	}
	var req api.AnalyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	resp, err := s.deps.Analyzer.Analyze(r.Context(), &req)
	if err != nil {
		slog.Error("analyze failed", "error", err)
		writeError(w, http.StatusInternalServerError, "agent analysis error: "+err.Error())
		return
	}
	resp.PrimaryMode = agent.PrimaryMode(resp.Modes)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		writeError(w, http.StatusServiceUnavailable, "web search not configured")
		return
	}
	var req api.WebCrawlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	keywords := req.Keywords
	if len(keywords) == 0 && strings.TrimSpace(req.OriginalQuery) != "" {
		keywords = []string{req.OriginalQuery}
	}
	if len(keywords) == 0 {
		writeError(w, http.StatusBadRequest, "keywords or original_query are required")
		return
	}

	sources, err := s.deps.Search.SearchAll(r.Context(), keywords)
	if err != nil {
		slog.Warn("crawl failed", "keywords", keywords, "error", err)
		writeJSON(w, http.StatusOK, api.WebCrawlResponse{Success: false, SearchKeywords: keywords, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, api.WebCrawlResponse{Success: true, SearchKeywords: keywords, Sources: sources})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.TaskTemplatesResponse{Templates: nonNil(s.deps.Templates.All())})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Templates.Get(r.PathValue("id"))
	if errors.Is(err, templates.ErrNotFound) {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTemplatesByCategory(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Templates.ByCategory(r.PathValue("category"))
	writeJSON(w, http.StatusOK, api.TaskTemplatesResponse{Templates: nonNil(list)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) chatRoom(ctx context.Context, c history.Chat) api.ChatRoom {
	room := api.ChatRoom{
		RoomID:       c.ID,
		UserID:       localUser,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.UTC().Format(time.RFC3339),
		MessageCount: c.MessageCount,
	}
	last, err := s.deps.Store.LastMessage(ctx, c.ID)
	switch {
	case err == nil:
		room.LastMessage = &api.LastMessage{
			Content:   last.Content,
			Timestamp: last.CreatedAt.UTC().Format(time.RFC3339),
			Role:      last.Role,
		}
	case !errors.Is(err, history.ErrNotFound):
		slog.Warn("failed to load last message", "chat_id", c.ID, "error", err)
	}
	return room
}

func chatMessage(m history.Message) api.ChatMessage {
	return api.ChatMessage{
		MessageID:    m.ID,
		UserID:       localUser,
		RoomID:       m.ChatID,
		Timestamp:    m.CreatedAt.UTC().Format(time.RFC3339),
		Role:         m.Role,
		Content:      m.Content,
		Images:       m.Images,
		CrawlSources: m.Sources,
	}
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// writeError uses FastAPI's {"detail": ...} shape, which the client reads.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
