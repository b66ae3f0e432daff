package agent

import (
	"context"

	"makoto/internal/api"
	"makoto/internal/stream"
)

type EventType string

const (
	EventAnalysis        EventType = "analysis"
	EventToken           EventType = "token"
	EventThought         EventType = "thought"
	EventStatus          EventType = "status"
	EventGeneratingImage EventType = "generating_image"
	EventImages          EventType = "images"
	EventImageError      EventType = "image_error"
	EventDone            EventType = "done"
	EventError           EventType = "error"
)

// Event is what a Runner reports to its caller while a turn is in flight.
// Data holds *api.AnalyzeResponse, string, Thought, api.AgentStatus,
// []stream.GeneratedImage or *Result depending on Type.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type Thought struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// Result summarises a completed turn.
type Result struct {
	ChatID   string                  `json:"chat_id"`
	Content  string                  `json:"content"`
	Modes    []api.Mode              `json:"modes"`
	Images   []stream.GeneratedImage `json:"images,omitempty"`
	Sources  []stream.Source         `json:"sources,omitempty"`
	Complete bool                    `json:"complete"`
}

type Runner interface {
	Run(ctx context.Context, chatID string, message string, emit func(Event)) (*Result, error)
}

// Backend is the part of the API client a Runner needs.
type Backend interface {
	AnalyzePrompt(ctx context.Context, req *api.AnalyzeRequest) (*api.AnalyzeResponse, error)
	StreamMessage(ctx context.Context, req *api.StreamRequest, h stream.Handler) (string, error)
}
