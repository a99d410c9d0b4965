package llm

import (
	"context"
	"encoding/json"
)

// ToolDescriptor is the provider-facing view of a registered tool: its name,
// description and declared input schema as a JSON schema document.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is one provider round: system prompt, conversation so far, and the
// tools the model may call. Model and MaxTokens are passed opaquely.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolDescriptor
	Model     string
	MaxTokens int
}

// Response is the assembled result of a non-streaming round.
type Response struct {
	Message    Message
	StopReason StopReason
	Usage      Usage
}

// Usage carries the token counts of one provider round.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is the adapter contract. Implementations convert the generic
// conversation to their wire format and back, and normalize streaming into
// StreamEvents. The adapter is the only place vendor types may appear.
type Provider interface {
	// Name identifies the adapter ("anthropic", "openai", ...).
	Name() string
	// ContextWindow returns the model context limit in tokens.
	ContextWindow() int
	// MaxOutput returns the maximum output tokens per response.
	MaxOutput() int
	// SupportsStreaming reports whether CreateStreamingResponse is usable.
	SupportsStreaming() bool
	// CreateResponse performs one non-streaming round.
	CreateResponse(ctx context.Context, req Request) (Response, error)
	// CreateStreamingResponse starts a streaming round. The returned channel
	// is closed after a Finished event; transport errors surface as
	// Finished(StopError) with a structured cause.
	CreateStreamingResponse(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Config selects and parameterizes a provider adapter.
type Config struct {
	// Provider picks the adapter by name.
	Provider string
	// Model is passed opaquely to the provider.
	Model string
	// WeakModel is a cheaper model used for summaries and delegate work.
	WeakModel string
	// MaxTokens bounds output tokens per response.
	MaxTokens int
	// APIKey overrides the environment credential when set.
	APIKey string
	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string
}
