package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"makoto/internal/agent"
	"makoto/internal/api"
	"makoto/internal/history"
	"makoto/internal/llm"
	"makoto/internal/stream"
	"makoto/internal/trace"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const systemPrompt = "You are Makoto, a helpful assistant. Reply in the language the user writes in."

var errNoLLM = errors.New("no language model configured")

type contentFrame struct {
	Content string `json:"content"`
}

type thoughtFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type generatingFrame struct {
	GeneratingImage bool `json:"generating_image"`
}

type imagesFrame struct {
	Images []stream.GeneratedImage `json:"images"`
}

type imageErrorFrame struct {
	ImageError string `json:"image_error"`
}

type doneFrame struct {
	Done         bool            `json:"done"`
	ChatID       string          `json:"chat_id"`
	CrawlSources []stream.Source `json:"crawl_sources"`
}

// turn is the outcome of one answered user message.
type turn struct {
	chatID    string
	messageID string
	modes     []api.Mode
	keywords  []string
	primary   string
	sources   []stream.Source
	content   string
	images    []stream.GeneratedImage
	elapsed   time.Duration
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req api.StreamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateChat(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.deps.LLM == nil {
		writeError(w, http.StatusServiceUnavailable, errNoLLM.Error())
		return
	}

	sse := NewSSEWriter(w)
	emit := func(v any) {
		if err := sse.Send(v); err != nil {
			slog.Debug("sse send failed", "error", err)
		}
	}

	t, err := s.runTurn(r.Context(), &req, emit)
	if err != nil {
		slog.Error("chat stream failed", "chat_id", t.chatID, "error", err)
		if !sse.Started() {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// Without a done frame the client treats the answer as incomplete.
		emit(s.status("error", err.Error()))
		return
	}

	sources := t.sources
	if sources == nil {
		sources = []stream.Source{}
	}
	emit(doneFrame{Done: true, ChatID: t.chatID, CrawlSources: sources})
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req api.StreamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateChat(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.deps.LLM == nil {
		writeError(w, http.StatusServiceUnavailable, errNoLLM.Error())
		return
	}

	t, err := s.runTurn(r.Context(), &req, func(any) {})
	if err != nil {
		slog.Error("chat completion failed", "chat_id", t.chatID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	mode := api.Mode(t.primary)
	if mode == "" {
		mode = api.ModeChat
	}
	writeJSON(w, http.StatusOK, api.ChatMessage{
		MessageID:    t.messageID,
		UserID:       localUser,
		RoomID:       t.chatID,
		Timestamp:    s.now().UTC().Format(time.RFC3339),
		Role:         api.RoleAssistant,
		Content:      t.content,
		Images:       t.images,
		CrawlSources: t.sources,
		AgentInfo: &api.AgentInfo{
			Mode:            mode,
			ExecutionTimeMS: t.elapsed.Milliseconds(),
		},
	})
}

// runTurn answers the last user message of req, sending wire frames to emit
// as it goes. The returned turn is never nil.
func (s *Server) runTurn(ctx context.Context, req *api.StreamRequest, emit func(any)) (*turn, error) {
	started := s.now()
	t := &turn{
		chatID:   req.ChatID,
		modes:    slices.Clone(req.Modes),
		keywords: req.SearchKeywords,
	}
	if t.chatID == "" {
		t.chatID = uuid.NewString()
	}

	ctx, span := trace.Tracer().Start(ctx, "gateway.chat.turn",
		oteltrace.WithAttributes(
			attribute.String("chat.id", t.chatID),
			attribute.Int("chat.messages", len(req.Messages)),
		),
	)
	defer span.End()

	prior := req.Messages[:len(req.Messages)-1]
	prompt := req.Messages[len(req.Messages)-1].Content
	agentMode := slices.Contains(t.modes, api.ModeAgent)

	if agentMode && s.deps.Analyzer != nil {
		s.analyze(ctx, t, prompt, prior, emit)
	}

	if slices.Contains(t.modes, api.ModeWebCrawl) && len(t.keywords) > 0 && s.deps.Search != nil {
		emit(s.status("searching", "Searching the web"))
		sources, err := s.deps.Search.SearchAll(ctx, t.keywords)
		if err != nil {
			span.RecordError(err)
			slog.Warn("web search failed", "chat_id", t.chatID, "error", err)
		}
		t.sources = sources
	}
	span.SetAttributes(attribute.Int("chat.sources", len(t.sources)))

	content, err := s.deps.LLM.ChatStream(ctx, llm.ChatRequest{
		Instructions: instructions(t.sources),
		Messages:     llmMessages(req.Messages),
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}, func(tok string) {
		emit(contentFrame{Content: tok})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return t, fmt.Errorf("llm: %w", err)
	}
	t.content = content

	s.persist(ctx, t, prompt)

	if slices.Contains(t.modes, api.ModeImage) && s.deps.Images != nil {
		s.generateImage(ctx, t, prompt, emit)
	}

	if agentMode {
		emit(s.status("complete", "Done"))
	}
	t.elapsed = s.now().Sub(started)
	return t, nil
}

func (s *Server) analyze(ctx context.Context, t *turn, prompt string, prior []api.StreamMessage, emit func(any)) {
	emit(s.status("analyzing", "Analysing the request"))

	req := &api.AnalyzeRequest{Prompt: prompt}
	for _, m := range prior {
		req.Context = append(req.Context, api.AnalyzeContext{Role: m.Role, Content: m.Content})
	}
	analysis, err := s.deps.Analyzer.Analyze(ctx, req)
	if err != nil {
		slog.Warn("agent analysis failed", "chat_id", t.chatID, "error", err)
		return
	}
	analysis.PrimaryMode = agent.PrimaryMode(analysis.Modes)
	t.primary = analysis.PrimaryMode

	emit(thoughtFrame{Type: "agent_thought", Content: analysis.Analysis, Status: "analyzed"})

	var found []string
	t.modes, found = agent.SelectModes(t.modes, analysis)
	if len(found) > 0 {
		t.keywords = found
	}
	slog.Debug("agent analysis done", "chat_id", t.chatID, "primary", t.primary, "keywords", t.keywords)
}

func (s *Server) generateImage(ctx context.Context, t *turn, prompt string, emit func(any)) {
	emit(generatingFrame{GeneratingImage: true})

	img, err := s.deps.Images.GenerateImage(ctx, prompt)
	if err != nil {
		slog.Warn("image generation failed", "chat_id", t.chatID, "error", err)
		emit(imageErrorFrame{ImageError: err.Error()})
		return
	}
	t.images = []stream.GeneratedImage{img}
	emit(imagesFrame{Images: t.images})

	if s.deps.Store != nil && t.messageID != "" {
		if err := s.deps.Store.SetMessageImages(ctx, t.messageID, t.images); err != nil {
			slog.Warn("failed to save images", "message_id", t.messageID, "error", err)
		}
	}
}

// persist stores the user message and the answer. Failures are logged; the
// answer has already been streamed.
func (s *Server) persist(ctx context.Context, t *turn, prompt string) {
	if s.deps.Store == nil {
		return
	}
	store := s.deps.Store
	if err := store.EnsureChat(ctx, t.chatID, history.Title(prompt)); err != nil {
		slog.Warn("failed to save chat", "chat_id", t.chatID, "error", err)
		return
	}
	if _, err := store.AppendMessage(ctx, history.Message{
		ChatID:  t.chatID,
		Role:    api.RoleUser,
		Content: prompt,
	}); err != nil {
		slog.Warn("failed to save user message", "chat_id", t.chatID, "error", err)
		return
	}
	msg, err := store.AppendMessage(ctx, history.Message{
		ChatID:  t.chatID,
		Role:    api.RoleAssistant,
		Content: t.content,
		Sources: t.sources,
	})
	if err != nil {
		slog.Warn("failed to save answer", "chat_id", t.chatID, "error", err)
		return
	}
	t.messageID = msg.ID
}

func (s *Server) status(status, message string) api.AgentStatus {
	return api.AgentStatus{
		Type:      "agent_status",
		Status:    status,
		Message:   message,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}
}

func validateChat(req *api.StreamRequest) error {
	if len(req.Messages) == 0 {
		return errors.New("messages are required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != api.RoleUser || strings.TrimSpace(last.Content) == "" {
		return errors.New("last message must be a non-empty user message")
	}
	return nil
}

func instructions(sources []stream.Source) string {
	if len(sources) == 0 {
		return systemPrompt
	}
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nUse these web search results where relevant and cite their URLs:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n%s\n", i+1, src.Title, src.URL, src.Snippet)
	}
	return b.String()
}

func llmMessages(msgs []api.StreamMessage) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
