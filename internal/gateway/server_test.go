package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makoto/internal/agent"
	"makoto/internal/api"
	"makoto/internal/db"
	"makoto/internal/history"
	"makoto/internal/llm"
	"makoto/internal/stream"
)

type fakeLLM struct {
	mu     sync.Mutex
	tokens []string
	err    error
	got    llm.ChatRequest
}

func (f *fakeLLM) ChatStream(_ context.Context, req llm.ChatRequest, onToken func(string)) (string, error) {
	f.mu.Lock()
	f.got = req
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for _, tok := range f.tokens {
		onToken(tok)
	}
	return strings.Join(f.tokens, ""), nil
}

type fakeAnalyzer struct {
	resp *api.AnalyzeResponse
	err  error
}

func (f *fakeAnalyzer) Analyze(context.Context, *api.AnalyzeRequest) (*api.AnalyzeResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.resp
	return &cp, nil
}

type fakeSearch struct {
	sources  []stream.Source
	keywords []string
}

func (f *fakeSearch) SearchAll(_ context.Context, keywords []string) ([]stream.Source, error) {
	f.keywords = keywords
	return f.sources, nil
}

type fakeImages struct {
	err error
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string) (stream.GeneratedImage, error) {
	if f.err != nil {
		return stream.GeneratedImage{}, f.err
	}
	return stream.GeneratedImage{URL: "https://img.example/1.png", Prompt: prompt}, nil
}

func newTestStore(t *testing.T) *history.Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())
	return history.NewStore(database)
}

func newTestClient(t *testing.T, deps Deps) *api.Client {
	t.Helper()
	if deps.Store == nil {
		deps.Store = newTestStore(t)
	}
	srv := httptest.NewServer(NewServer(deps).Handler())
	t.Cleanup(srv.Close)
	return api.New(srv.URL, api.WithHTTPClient(srv.Client()), api.WithRetries(0))
}

func userTurn(text string, modes ...api.Mode) *api.StreamRequest {
	return &api.StreamRequest{
		Messages: []api.StreamMessage{{Role: api.RoleUser, Content: text}},
		Modes:    modes,
	}
}

func TestChatStreamAgentFlow(t *testing.T) {
	model := &fakeLLM{tokens: []string{"It is", " sunny."}}
	search := &fakeSearch{sources: []stream.Source{{URL: "https://weather.example", Title: "Weather", Snippet: "sunny"}}}
	c := newTestClient(t, Deps{
		LLM: model,
		Analyzer: &fakeAnalyzer{resp: &api.AnalyzeResponse{
			Analysis: "needs current weather and a picture",
			Modes: []api.ModeAnalysis{
				{Type: api.AnalysisWeb, Confidence: 0.9, SearchKeywords: []string{"tokyo weather"}},
				{Type: api.AnalysisImage, Confidence: 0.7},
			},
		}},
		Search: search,
		Images: &fakeImages{},
	})
	ctx := context.Background()

	var events []stream.Event
	chatID, err := c.StreamMessage(ctx, userTurn("weather in tokyo, and draw it", api.ModeAgent), func(ev stream.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.NotEmpty(t, chatID)

	kinds := make([]stream.Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []stream.Kind{
		stream.KindAgentStatus,
		stream.KindAgentThought,
		stream.KindAgentStatus,
		stream.KindTextDelta,
		stream.KindTextDelta,
		stream.KindImageGenerating,
		stream.KindImagesReady,
		stream.KindAgentStatus,
		stream.KindDone,
	}, kinds)

	first, err := api.ParseAgentStatus(events[0].Raw)
	require.NoError(t, err)
	assert.Equal(t, "analyzing", first.Status)
	assert.Equal(t, "needs current weather and a picture", events[1].Content)
	last, err := api.ParseAgentStatus(events[7].Raw)
	require.NoError(t, err)
	assert.Equal(t, "complete", last.Status)

	done := events[8]
	assert.Equal(t, chatID, done.ChatID)
	assert.Equal(t, search.sources, done.CrawlSources)
	assert.Equal(t, []string{"tokyo weather"}, search.keywords)
	assert.Contains(t, model.got.Instructions, "https://weather.example")

	detail, err := c.GetChat(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "weather in tokyo, and draw it", detail.Title)
	require.Len(t, detail.Messages, 2)
	answer := detail.Messages[1]
	assert.Equal(t, api.RoleAssistant, answer.Role)
	assert.Equal(t, "It is sunny.", answer.Content)
	require.Len(t, answer.Images, 1)
	assert.Equal(t, "https://img.example/1.png", answer.Images[0].URL)
	assert.Equal(t, search.sources, answer.CrawlSources)
}

func TestChatStreamFollowUpKeepsChat(t *testing.T) {
	model := &fakeLLM{tokens: []string{"ok"}}
	c := newTestClient(t, Deps{LLM: model})
	ctx := context.Background()

	chatID, err := c.StreamMessage(ctx, userTurn("first"), func(stream.Event) {})
	require.NoError(t, err)

	req := &api.StreamRequest{
		ChatID: chatID,
		Messages: []api.StreamMessage{
			{Role: api.RoleUser, Content: "first"},
			{Role: api.RoleAssistant, Content: "ok"},
			{Role: api.RoleUser, Content: "second"},
		},
	}
	again, err := c.StreamMessage(ctx, req, func(stream.Event) {})
	require.NoError(t, err)
	assert.Equal(t, chatID, again)
	assert.Len(t, model.got.Messages, 3)

	detail, err := c.GetChat(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "first", detail.Title)
	assert.Len(t, detail.Messages, 4)
}

func TestChatStreamLLMFailureBeforeTokens(t *testing.T) {
	c := newTestClient(t, Deps{LLM: &fakeLLM{err: errors.New("model overloaded")}})

	called := false
	_, err := c.StreamMessage(context.Background(), userTurn("hi"), func(stream.Event) { called = true })
	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Contains(t, te.Body, "model overloaded")
	assert.False(t, called)
}

func TestChatStreamLLMFailureAfterStatus(t *testing.T) {
	c := newTestClient(t, Deps{
		LLM:      &fakeLLM{err: errors.New("model overloaded")},
		Analyzer: &fakeAnalyzer{err: errors.New("analyzer down")},
	})

	var events []stream.Event
	chatID, err := c.StreamMessage(context.Background(), userTurn("hi", api.ModeAgent), func(ev stream.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	assert.Empty(t, chatID)
	require.Len(t, events, 2)
	st, err := api.ParseAgentStatus(events[1].Raw)
	require.NoError(t, err)
	assert.Equal(t, "error", st.Status)
}

func TestChatStreamImageError(t *testing.T) {
	c := newTestClient(t, Deps{
		LLM:    &fakeLLM{tokens: []string{"here"}},
		Images: &fakeImages{err: errors.New("content policy")},
	})

	var events []stream.Event
	_, err := c.StreamMessage(context.Background(), userTurn("draw", api.ModeImage), func(ev stream.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, stream.KindImageGenerating, events[1].Kind)
	assert.Equal(t, stream.KindImageError, events[2].Kind)
	assert.Contains(t, events[2].Error, "content policy")
	assert.Equal(t, stream.KindDone, events[3].Kind)
}

func TestChatStreamValidation(t *testing.T) {
	c := newTestClient(t, Deps{LLM: &fakeLLM{}})

	for name, req := range map[string]*api.StreamRequest{
		"no messages":     {},
		"assistant last":  {Messages: []api.StreamMessage{{Role: api.RoleAssistant, Content: "x"}}},
		"blank user text": {Messages: []api.StreamMessage{{Role: api.RoleUser, Content: "  "}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.StreamMessage(context.Background(), req, func(stream.Event) {})
			var te *api.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, http.StatusBadRequest, te.StatusCode)
		})
	}
}

func TestChatStreamWithoutLLM(t *testing.T) {
	c := newTestClient(t, Deps{})
	_, err := c.StreamMessage(context.Background(), userTurn("hi"), func(stream.Event) {})
	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestChatCompletion(t *testing.T) {
	c := newTestClient(t, Deps{LLM: &fakeLLM{tokens: []string{"one", "shot"}}})

	msg, err := c.SendMessage(context.Background(), userTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, "oneshot", msg.Content)
	assert.Equal(t, api.RoleAssistant, msg.Role)
	assert.NotEmpty(t, msg.RoomID)
	assert.NotEmpty(t, msg.MessageID)
	require.NotNil(t, msg.AgentInfo)
	assert.Equal(t, api.ModeChat, msg.AgentInfo.Mode)
}

func TestChatsListAndDelete(t *testing.T) {
	c := newTestClient(t, Deps{LLM: &fakeLLM{tokens: []string{"ok"}}})
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		id, err := c.StreamMessage(ctx, userTurn(text), func(stream.Event) {})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	page, err := c.ListChats(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasMore)
	require.Len(t, page.Chats, 2)
	require.NotNil(t, page.Chats[0].LastMessage)
	assert.Equal(t, api.RoleAssistant, page.Chats[0].LastMessage.Role)
	assert.Equal(t, 2, page.Chats[0].MessageCount)

	page, err = c.ListChats(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Chats, 1)

	require.NoError(t, c.DeleteChat(ctx, ids[0]))
	_, err = c.GetChat(ctx, ids[0])
	assert.True(t, api.IsNotFound(err))
	assert.True(t, api.IsNotFound(c.DeleteChat(ctx, ids[0])))
}

func TestAnalyzeEndpoint(t *testing.T) {
	c := newTestClient(t, Deps{Analyzer: &fakeAnalyzer{resp: &api.AnalyzeResponse{
		Analysis: "draw",
		Modes: []api.ModeAnalysis{
			{Type: api.AnalysisImage, Confidence: 0.9},
			{Type: api.AnalysisChat, Confidence: 0.6},
		},
	}}})

	resp, err := c.AnalyzePrompt(context.Background(), &api.AnalyzeRequest{Prompt: "draw a cat"})
	require.NoError(t, err)
	assert.Equal(t, api.AnalysisImage, resp.PrimaryMode)

	_, err = c.AnalyzePrompt(context.Background(), &api.AnalyzeRequest{})
	var te *api.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
}

func TestCrawlEndpoint(t *testing.T) {
	search := &fakeSearch{sources: []stream.Source{{URL: "https://a"}}}
	c := newTestClient(t, Deps{Search: search})

	resp, err := c.Crawl(context.Background(), &api.WebCrawlRequest{OriginalQuery: "latest go release"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"latest go release"}, search.keywords)
	assert.Equal(t, search.sources, resp.Sources)
}

func TestTemplateEndpoints(t *testing.T) {
	c := newTestClient(t, Deps{})
	ctx := context.Background()

	all, err := c.TaskTemplates(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	tpl, err := c.TaskTemplate(ctx, "summary")
	require.NoError(t, err)
	assert.Equal(t, "summary", tpl.ID)

	_, err = c.TaskTemplate(ctx, "nope")
	assert.True(t, api.IsNotFound(err))

	byCat, err := c.TaskTemplatesByCategory(ctx, "analysis")
	require.NoError(t, err)
	for _, tpl := range byCat {
		assert.Equal(t, "analysis", tpl.Category)
	}

	empty, err := c.TaskTemplatesByCategory(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChatRunnerAgainstServer(t *testing.T) {
	c := newTestClient(t, Deps{
		LLM: &fakeLLM{tokens: []string{"Hello", "!"}},
		Analyzer: &fakeAnalyzer{resp: &api.AnalyzeResponse{
			Modes: []api.ModeAnalysis{{Type: api.AnalysisChat, Confidence: 0.9}},
		}},
	})
	local := newTestStore(t)
	r := agent.NewChatRunner(c, agent.WithModes(api.ModeAgent), agent.WithStore(local))

	var types []agent.EventType
	res, err := r.Run(context.Background(), "", "hello", func(ev agent.Event) { types = append(types, ev.Type) })
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, "Hello!", res.Content)
	assert.NotEmpty(t, res.ChatID)
	assert.Equal(t, agent.EventAnalysis, types[0])
	assert.Equal(t, agent.EventDone, types[len(types)-1])

	msgs, err := local.Messages(context.Background(), res.ChatID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(Deps{}).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
