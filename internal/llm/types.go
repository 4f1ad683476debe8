package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role is the message role used in chat exchanges.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Finish reasons reported by providers. FinishLength signals a length-limited
// stop, which the truncation heuristic keys off.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// ChatMessage represents a single message exchanged with the model.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FormatKind selects the response-shape constraint sent to the endpoint.
type FormatKind string

const (
	FormatNone   FormatKind = ""
	FormatJSON   FormatKind = "json_object"
	FormatSchema FormatKind = "json_schema"
)

// ResponseFormat constrains the shape of the generated response.
type ResponseFormat struct {
	Kind       FormatKind
	SchemaName string
	Schema     json.RawMessage
}

// ChatRequest is the input for the conversational endpoint.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	Seed        int
	Format      ResponseFormat
}

// CompletionRequest is the input for the plain-completion endpoint.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Seed        int
	Format      ResponseFormat
}

// Usage captures token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the result of a conversational completion.
type ChatResponse struct {
	Message      ChatMessage
	FinishReason string
	Usage        Usage
	ProviderName string
	Model        string
}

// CompletionResponse is the result of a plain completion.
type CompletionResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
	ProviderName string
	Model        string
}

// Provider defines the contract for generation endpoints. Both calls go
// through the retrying transport; errors surfaced here are already fatal.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// ErrFormatUnsupported reports that the endpoint rejected the requested
// response-shape constraint. Callers drop to a weaker constraint on it.
var ErrFormatUnsupported = errors.New("response format not supported by endpoint")
