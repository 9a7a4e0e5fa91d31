// Package protocol defines the canonical chat-completion wire format.
//
// DESIGN: One request/response shape for all clients, modeled on the common
// chat-completion convention. Backend-specific formats never leak past
// internal/stream; everything the client sees is built from these types.
package protocol

import "strings"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons reported in the terminal chunk / aggregate response.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
	FinishReasonFunctionCall  = "function_call"
)

// Object type markers.
const (
	ObjectChunk      = "chat.completion.chunk"
	ObjectCompletion = "chat.completion"
)

// Message is a single role-tagged message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the canonical inbound request body.
// Model is a composite "provider/generic-name" identifier.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Language    string    `json:"language,omitempty"`
	// ThreadID continues an existing backend conversation thread.
	ThreadID string `json:"thread_id,omitempty"`
}

// SplitModel splits a composite "provider/name" model identifier.
// A bare name with no slash returns an empty provider.
func (r *ChatRequest) SplitModel() (provider, name string) {
	if idx := strings.Index(r.Model, "/"); idx != -1 {
		return r.Model[:idx], r.Model[idx+1:]
	}
	return "", r.Model
}

// LastUserContent returns the content of the most recent user-authored
// message, or "" when the conversation has none.
func (r *ChatRequest) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser && r.Messages[i].Content != "" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Delta is the incremental payload of one streaming chunk. Exactly one of
// Role, Content or FunctionCall is set per chunk.
type Delta struct {
	Role         string        `json:"role,omitempty"`
	Content      string        `json:"content,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// FunctionCall is a function-like side payload (sources, related questions)
// surfaced to clients that understand it.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChunkChoice is one choice inside a streaming chunk.
type ChunkChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is one frame of the canonical streaming protocol.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Error   string        `json:"error,omitempty"`
}

// Usage carries backend-reported (or estimated) token counters.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one choice inside the aggregate response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatCompletionResponse is the canonical aggregate response object.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}
