package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makoto/internal/api"
)

type scriptedProvider struct {
	answer string
	err    error
	got    ChatRequest
}

func (p *scriptedProvider) ChatStream(_ context.Context, req ChatRequest, onToken func(string)) (string, error) {
	p.got = req
	if p.err != nil {
		return "", p.err
	}
	onToken(p.answer)
	return p.answer, nil
}

func TestParseAnalysis(t *testing.T) {
	text := "Sure.\n```json\n{\"modes\":[{\"type\":\"web\",\"confidence\":0.9,\"reason\":\"news\",\"search_keywords\":[\"a\",\"b\"]}],\"analysis\":\"current events\"}\n```"
	resp, err := ParseAnalysis(text)
	require.NoError(t, err)
	require.Len(t, resp.Modes, 1)
	assert.Equal(t, api.AnalysisWeb, resp.Modes[0].Type)
	assert.Equal(t, []string{"a", "b"}, resp.Modes[0].SearchKeywords)
	assert.Equal(t, "current events", resp.Analysis)
}

func TestParseAnalysisRejects(t *testing.T) {
	for _, text := range []string{"", "no json here", `{"modes":[]}`, `{"modes":[{"type":`} {
		_, err := ParseAnalysis(text)
		assert.Error(t, err, text)
	}
}

func TestAnalyzerUsesRecentContext(t *testing.T) {
	p := &scriptedProvider{answer: `{"modes":[{"type":"image","confidence":0.95,"reason":"draw"}]}`}
	a := NewAnalyzer(p)

	resp, err := a.Analyze(context.Background(), &api.AnalyzeRequest{
		Prompt: "draw a cat",
		Context: []api.AnalyzeContext{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
			{Role: "user", Content: "third"},
			{Role: "assistant", Content: strings.Repeat("x", 150)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, api.AnalysisImage, resp.Modes[0].Type)
	assert.Equal(t, "prompt analysed", resp.Analysis)

	require.Len(t, p.got.Messages, 2)
	ctxMsg := p.got.Messages[0].Content
	assert.NotContains(t, ctxMsg, "first")
	assert.Contains(t, ctxMsg, "second")
	assert.Contains(t, ctxMsg, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, ctxMsg, strings.Repeat("x", 101))
	assert.Contains(t, p.got.Messages[1].Content, "draw a cat")
	assert.NotEmpty(t, p.got.Instructions)
}

func TestAnalyzerFallsBackToChat(t *testing.T) {
	a := NewAnalyzer(&scriptedProvider{answer: "I think you want the web."})

	resp, err := a.Analyze(context.Background(), &api.AnalyzeRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.Len(t, resp.Modes, 1)
	assert.Equal(t, api.AnalysisChat, resp.Modes[0].Type)
	assert.Equal(t, FallbackConfidence, resp.Modes[0].Confidence)
}

func TestAnalyzerProviderError(t *testing.T) {
	a := NewAnalyzer(&scriptedProvider{err: errors.New("quota")})
	_, err := a.Analyze(context.Background(), &api.AnalyzeRequest{Prompt: "hi"})
	assert.ErrorContains(t, err, "quota")
}
