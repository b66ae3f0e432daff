package agent

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"makoto/internal/api"
	"makoto/internal/history"
	"makoto/internal/stream"
	"makoto/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// analysisContextSize is how many prior messages the analyzer sees.
const analysisContextSize = 6

type RunnerOption func(*ChatRunner)

func WithModes(modes ...api.Mode) RunnerOption {
	return func(r *ChatRunner) { r.modes = modes }
}

func WithTemperature(t float64) RunnerOption {
	return func(r *ChatRunner) { r.temperature = &t }
}

func WithMaxTokens(n int) RunnerOption {
	return func(r *ChatRunner) { r.maxTokens = &n }
}

// WithSearchKeywords sets keywords for webcrawl mode. Keywords found by
// the agent analysis replace them.
func WithSearchKeywords(keywords ...string) RunnerOption {
	return func(r *ChatRunner) { r.keywords = keywords }
}

// WithStore keeps a local transcript of every completed turn and replays it
// as context on the next one.
func WithStore(s *history.Store) RunnerOption {
	return func(r *ChatRunner) { r.store = s }
}

// ChatRunner runs one user turn against the backend: optional agent
// analysis, then the streamed answer.
type ChatRunner struct {
	backend     Backend
	store       *history.Store
	modes       []api.Mode
	temperature *float64
	maxTokens   *int
	keywords    []string
	now         func() time.Time
}

func NewChatRunner(backend Backend, opts ...RunnerOption) *ChatRunner {
	r := &ChatRunner{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ChatRunner) Run(ctx context.Context, chatID string, message string, emit func(Event)) (*Result, error) {
	ctx, span := trace.Tracer().Start(ctx, "agent.chat.run",
		oteltrace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("user.message_length", len(message)),
		),
	)
	defer span.End()

	prior := r.recall(ctx, chatID)

	modes := slices.Clone(r.modes)
	keywords := r.keywords
	if slices.Contains(modes, api.ModeAgent) {
		modes, keywords = r.analyze(ctx, message, prior, modes, keywords, emit)
	}
	span.SetAttributes(attribute.StringSlice("chat.modes", modeStrings(modes)))

	req := &api.StreamRequest{
		Messages:    streamMessages(prior, message, r.now()),
		ChatID:      chatID,
		Modes:       modes,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}
	if slices.Contains(modes, api.ModeWebCrawl) {
		req.SearchKeywords = keywords
	}

	result := &Result{ChatID: chatID, Modes: modes}
	var text strings.Builder

	returnedID, err := r.backend.StreamMessage(ctx, req, func(ev stream.Event) {
		switch ev.Kind {
		case stream.KindTextDelta:
			text.WriteString(ev.Content)
			emit(Event{Type: EventToken, Data: ev.Content})
		case stream.KindAgentThought:
			emit(Event{Type: EventThought, Data: Thought{Content: ev.Content, Status: ev.Status}})
		case stream.KindAgentStatus:
			st, err := api.ParseAgentStatus(ev.Raw)
			if err != nil {
				slog.Debug("undecodable agent status", "error", err)
				return
			}
			emit(Event{Type: EventStatus, Data: st})
		case stream.KindImageGenerating:
			emit(Event{Type: EventGeneratingImage})
		case stream.KindImagesReady:
			result.Images = append(result.Images, ev.Images...)
			emit(Event{Type: EventImages, Data: ev.Images})
		case stream.KindImageError:
			emit(Event{Type: EventImageError, Data: ev.Error})
		case stream.KindDone:
			result.Complete = true
			result.Sources = ev.CrawlSources
		}
	})
	result.Content = text.String()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		emit(Event{Type: EventError, Data: err.Error()})
		return result, err
	}
	if returnedID != "" {
		result.ChatID = returnedID
	}

	if result.Complete {
		r.persist(ctx, message, result)
	} else {
		slog.Warn("stream finished without completion", "chat_id", result.ChatID)
	}

	emit(Event{Type: EventDone, Data: result})
	return result, nil
}

// analyze asks the backend which modes suit the message and merges them in.
// Failures are logged and leave the modes untouched.
func (r *ChatRunner) analyze(ctx context.Context, message string, prior []history.Message, modes []api.Mode, keywords []string, emit func(Event)) ([]api.Mode, []string) {
	ctx, span := trace.Tracer().Start(ctx, "agent.analyze")
	defer span.End()

	req := &api.AnalyzeRequest{Prompt: message}
	start := max(0, len(prior)-analysisContextSize)
	for _, m := range prior[start:] {
		req.Context = append(req.Context, api.AnalyzeContext{Role: m.Role, Content: m.Content})
	}

	analysis, err := r.backend.AnalyzePrompt(ctx, req)
	if err != nil {
		span.RecordError(err)
		slog.Warn("agent analysis failed", "error", err)
		return modes, keywords
	}
	emit(Event{Type: EventAnalysis, Data: analysis})

	selected, found := SelectModes(modes, analysis)
	slog.Debug("agent analysis done", "modes", modeStrings(selected), "keywords", found, "primary", analysis.PrimaryMode)
	if len(found) > 0 {
		keywords = found
	}
	return selected, keywords
}

func (r *ChatRunner) recall(ctx context.Context, chatID string) []history.Message {
	if r.store == nil || chatID == "" {
		return nil
	}
	msgs, err := r.store.Messages(ctx, chatID, 0)
	if err != nil {
		slog.Warn("failed to recall history", "chat_id", chatID, "error", err)
		return nil
	}
	return msgs
}

// persist saves the turn locally. Failures are logged, never returned: the
// backend already has the turn.
func (r *ChatRunner) persist(ctx context.Context, message string, result *Result) {
	if r.store == nil || result.ChatID == "" {
		return
	}
	if err := r.store.EnsureChat(ctx, result.ChatID, history.Title(message)); err != nil {
		slog.Warn("failed to ensure chat", "chat_id", result.ChatID, "error", err)
		return
	}
	if _, err := r.store.AppendMessage(ctx, history.Message{
		ChatID:  result.ChatID,
		Role:    api.RoleUser,
		Content: message,
	}); err != nil {
		slog.Warn("failed to save user message", "chat_id", result.ChatID, "error", err)
		return
	}
	if _, err := r.store.AppendMessage(ctx, history.Message{
		ChatID:  result.ChatID,
		Role:    api.RoleAssistant,
		Content: result.Content,
		Images:  result.Images,
		Sources: result.Sources,
	}); err != nil {
		slog.Warn("failed to save assistant message", "chat_id", result.ChatID, "error", err)
	}
}

func streamMessages(prior []history.Message, message string, now time.Time) []api.StreamMessage {
	out := make([]api.StreamMessage, 0, len(prior)+1)
	for _, m := range prior {
		if m.Role != api.RoleUser && m.Role != api.RoleAssistant {
			continue
		}
		out = append(out, api.StreamMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return append(out, api.StreamMessage{
		Role:      api.RoleUser,
		Content:   message,
		Timestamp: now.Format(time.RFC3339),
	})
}

func modeStrings(modes []api.Mode) []string {
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}
