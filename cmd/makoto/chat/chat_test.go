package chat

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"makoto/internal/agent"
	"makoto/internal/api"
	"makoto/internal/stream"
)

func TestPrinterSplitsStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	emit := printer(&out, &errOut)

	emit(agent.Event{Type: agent.EventAnalysis, Data: &api.AnalyzeResponse{Analysis: "needs search"}})
	emit(agent.Event{Type: agent.EventToken, Data: "Hello"})
	emit(agent.Event{Type: agent.EventStatus, Data: api.AgentStatus{Status: "searching", Message: "Searching the web"}})
	emit(agent.Event{Type: agent.EventToken, Data: " world"})
	emit(agent.Event{Type: agent.EventThought, Data: agent.Thought{Content: "hmm"}})
	emit(agent.Event{Type: agent.EventImageError, Data: errors.New("policy").Error()})

	assert.Equal(t, "Hello world", out.String())
	assert.Equal(t, "[agent] needs search\n[searching] Searching the web\n[thinking] hmm\n[image] failed: policy\n", errOut.String())
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, &agent.Result{
		Images:  []stream.GeneratedImage{{URL: "https://img/1"}},
		Sources: []stream.Source{{URL: "https://a", Title: "A"}},
	})
	assert.Equal(t, "image: https://img/1\nsources:\n  [1] A https://a\n", out.String())
}
