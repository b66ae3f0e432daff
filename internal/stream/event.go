package stream

import "encoding/json"

// Kind discriminates the variants of Event.
type Kind int

const (
	KindTextDelta Kind = iota + 1
	KindDone
	KindAgentThought
	KindAgentStatus
	KindImageGenerating
	KindImagesReady
	KindImageError
)

func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text_delta"
	case KindDone:
		return "done"
	case KindAgentThought:
		return "agent_thought"
	case KindAgentStatus:
		return "agent_status"
	case KindImageGenerating:
		return "generating_image"
	case KindImagesReady:
		return "images"
	case KindImageError:
		return "image_error"
	default:
		return "unknown"
	}
}

// Source is a web page the backend consulted while answering.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// GeneratedImage is an image produced by the backend's image mode.
type GeneratedImage struct {
	URL       string `json:"url"`
	Prompt    string `json:"prompt,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Event is one decoded frame. Which fields are set depends on Kind:
//
//	KindTextDelta        Content
//	KindDone             ChatID, CrawlSources
//	KindAgentThought     Content, Status
//	KindAgentStatus      Raw
//	KindImageGenerating  (none)
//	KindImagesReady      Images
//	KindImageError       Error
type Event struct {
	Kind         Kind
	Content      string
	Status       string
	ChatID       string
	CrawlSources []Source
	Raw          json.RawMessage
	Images       []GeneratedImage
	Error        string
}

// Handler receives decoded events synchronously, in stream order.
type Handler func(Event)

// Callbacks routes events to per-kind functions. Nil entries are skipped.
type Callbacks struct {
	OnChunk           func(content string)
	OnDone            func(chatID string, sources []Source)
	OnAgentThought    func(thought, status string)
	OnAgentStatus     func(raw json.RawMessage)
	OnGeneratingImage func()
	OnImages          func(images []GeneratedImage)
	OnImageError      func(msg string)
}

// Handle dispatches ev to the matching callback.
func (c Callbacks) Handle(ev Event) {
	switch ev.Kind {
	case KindTextDelta:
		if c.OnChunk != nil {
			c.OnChunk(ev.Content)
		}
	case KindDone:
		if c.OnDone != nil {
			c.OnDone(ev.ChatID, ev.CrawlSources)
		}
	case KindAgentThought:
		if c.OnAgentThought != nil {
			c.OnAgentThought(ev.Content, ev.Status)
		}
	case KindAgentStatus:
		if c.OnAgentStatus != nil {
			c.OnAgentStatus(ev.Raw)
		}
	case KindImageGenerating:
		if c.OnGeneratingImage != nil {
			c.OnGeneratingImage()
		}
	case KindImagesReady:
		if c.OnImages != nil {
			c.OnImages(ev.Images)
		}
	case KindImageError:
		if c.OnImageError != nil {
			c.OnImageError(ev.Error)
		}
	}
}
