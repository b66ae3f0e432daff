package api

import (
	"encoding/json"

	"makoto/internal/stream"
)

// Mode is a chat augmentation mode understood by the backend.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeImage    Mode = "image"
	ModeWebCrawl Mode = "webcrawl"
	ModeRAG      Mode = "rag"
	ModeAgent    Mode = "agent"
)

// Analysis types returned by the agent analyzer. They differ from Mode:
// the analyzer says "web" where the stream endpoint expects "webcrawl".
const (
	AnalysisWeb   = "web"
	AnalysisImage = "image"
	AnalysisRAG   = "rag"
	AnalysisChat  = "chat"
	AnalysisNone  = "none"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type StreamMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// StreamRequest is the body of both the streaming and the one-shot
// completion endpoints.
type StreamRequest struct {
	Messages       []StreamMessage `json:"messages"`
	ChatID         string          `json:"chat_id,omitempty"`
	Modes          []Mode          `json:"modes,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	SearchKeywords []string        `json:"search_keywords,omitempty"`
	Stream         bool            `json:"stream"`
}

type LastMessage struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Role      string `json:"role"`
}

type ChatSettings struct {
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	ActiveModes  []string `json:"active_modes,omitempty"`
}

type ChatRoom struct {
	RoomID       string        `json:"room_id"`
	UserID       string        `json:"user_id"`
	Title        string        `json:"title"`
	CreatedAt    string        `json:"created_at"`
	UpdatedAt    string        `json:"updated_at"`
	MessageCount int           `json:"message_count"`
	LastMessage  *LastMessage  `json:"last_message,omitempty"`
	Settings     *ChatSettings `json:"settings,omitempty"`
}

type AgentInfo struct {
	Mode            Mode  `json:"mode"`
	ExecutionTimeMS int64 `json:"execution_time_ms"`
	TokensUsed      int   `json:"tokens_used,omitempty"`
}

type ChatMessage struct {
	MessageID    string                  `json:"message_id"`
	UserID       string                  `json:"user_id"`
	RoomID       string                  `json:"room_id"`
	Timestamp    string                  `json:"timestamp"`
	Role         string                  `json:"role"`
	Content      string                  `json:"content"`
	Images       []stream.GeneratedImage `json:"images,omitempty"`
	CrawlSources []stream.Source         `json:"crawl_sources,omitempty"`
	AgentInfo    *AgentInfo              `json:"agent_info,omitempty"`
}

// ChatDetail is a chat room together with its messages.
type ChatDetail struct {
	ChatRoom
	Messages []ChatMessage `json:"messages"`
}

type GetChatsResponse struct {
	Chats      []ChatRoom `json:"chats"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"total_pages"`
	HasMore    bool       `json:"has_more"`
}

type ModeAnalysis struct {
	Type           string   `json:"type"`
	Confidence     float64  `json:"confidence"`
	Reason         string   `json:"reason"`
	SearchKeywords []string `json:"search_keywords,omitempty"`
}

type AnalyzeContext struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnalyzeRequest struct {
	Prompt  string           `json:"prompt"`
	Context []AnalyzeContext `json:"context,omitempty"`
}

type AnalyzeResponse struct {
	Modes       []ModeAnalysis `json:"modes"`
	Analysis    string         `json:"analysis"`
	PrimaryMode string         `json:"primary_mode,omitempty"`
}

type WebCrawlRequest struct {
	Keywords      []string `json:"keywords"`
	OriginalQuery string   `json:"original_query"`
}

type WebCrawlResponse struct {
	Success        bool            `json:"success"`
	SearchKeywords []string        `json:"search_keywords,omitempty"`
	Sources        []stream.Source `json:"sources,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type TaskTemplate struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Prompt      string `json:"prompt" yaml:"prompt"`
	Category    string `json:"category" yaml:"category"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
	UpdatedAt   string `json:"updated_at" yaml:"updated_at"`
}

type TaskTemplatesResponse struct {
	Templates []TaskTemplate `json:"templates"`
}

// AgentStatus is the decoded form of an agent_status frame.
type AgentStatus struct {
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ParseAgentStatus decodes the raw payload of a KindAgentStatus event.
func ParseAgentStatus(raw json.RawMessage) (AgentStatus, error) {
	var s AgentStatus
	err := json.Unmarshal(raw, &s)
	return s, err
}

// Float64 and Int return pointers for the optional request fields.
func Float64(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
