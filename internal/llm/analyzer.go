package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"makoto/internal/api"
)

// FallbackConfidence is the confidence given to plain chat when the model
// answer cannot be parsed.
const FallbackConfidence = 0.8

const (
	analysisContextTurns = 3
	analysisContextChars = 100
)

const analyzeInstructions = `You analyse a user's prompt and decide which answering modes are needed.

- web: the answer needs current or verifiable facts (news, prices, weather, people in office, anything after your knowledge cutoff). Always include 3-5 concrete search_keywords.
- image: the user asks to draw, create or generate a picture, illustration or design.
- rag: the user refers to uploaded documents or files.
- chat: an interactive, step by step exchange.
- none: general knowledge, programming, maths or creative writing.

Include every mode that applies. Confidence is a number between 0 and 1.
Answer with JSON only, in this shape:
{"modes":[{"type":"web|image|rag|chat|none","confidence":0.0,"reason":"...","search_keywords":["..."]}],"analysis":"..."}`

// Analyzer asks a model which modes a prompt needs.
type Analyzer struct {
	provider Provider
}

func NewAnalyzer(p Provider) *Analyzer {
	return &Analyzer{provider: p}
}

func (a *Analyzer) Analyze(ctx context.Context, req *api.AnalyzeRequest) (*api.AnalyzeResponse, error) {
	var msgs []Message
	if len(req.Context) > 0 {
		start := max(0, len(req.Context)-analysisContextTurns)
		var b strings.Builder
		b.WriteString("Earlier conversation:\n")
		for _, c := range req.Context[start:] {
			fmt.Fprintf(&b, "%s: %s\n", c.Role, clip(c.Content, analysisContextChars))
		}
		msgs = append(msgs, Message{Role: "system", Content: b.String()})
	}
	msgs = append(msgs, Message{Role: "user", Content: "Analyse this prompt:\n\n" + req.Prompt})

	temp := 0.3
	maxTokens := 500
	text, err := a.provider.ChatStream(ctx, ChatRequest{
		Instructions: analyzeInstructions,
		Messages:     msgs,
		Temperature:  &temp,
		MaxTokens:    &maxTokens,
	}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("analyze prompt: %w", err)
	}

	resp, err := ParseAnalysis(text)
	if err != nil {
		slog.Warn("analysis not parseable, falling back to chat", "error", err)
		return &api.AnalyzeResponse{
			Modes: []api.ModeAnalysis{{
				Type:       api.AnalysisChat,
				Confidence: FallbackConfidence,
				Reason:     "analysis could not be parsed",
			}},
			Analysis: "analysis failed",
		}, nil
	}
	return resp, nil
}

// ParseAnalysis extracts the JSON object from a model answer, tolerating
// code fences and surrounding prose.
func ParseAnalysis(text string) (*api.AnalyzeResponse, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in %q", clip(text, 80))
	}

	var resp api.AnalyzeResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return nil, err
	}
	if len(resp.Modes) == 0 {
		return nil, fmt.Errorf("analysis has no modes")
	}
	if resp.Analysis == "" {
		resp.Analysis = "prompt analysed"
	}
	return &resp, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
