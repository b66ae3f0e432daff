package llm

import (
	"context"

	"makoto/internal/stream"
)

// Message is one turn of conversation handed to a Provider. Role is "user",
// "assistant" or "system".
type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	Instructions string
	Messages     []Message
	Temperature  *float64
	MaxTokens    *int
}

// Provider streams a completion, calling onToken for every text delta, and
// returns the full text.
type Provider interface {
	ChatStream(ctx context.Context, req ChatRequest, onToken func(string)) (string, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (stream.GeneratedImage, error)
}
