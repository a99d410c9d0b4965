// Package threads defines the persistent data model of the conversation
// engine: threads, thread events, and their kind-specific payloads. Events
// are immutable and append-only; everything else in the system is derived
// from them.
package threads

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// EventKind identifies the payload carried by a ThreadEvent.
type EventKind string

const (
	EventUserMessage      EventKind = "user_message"
	EventAgentMessage     EventKind = "agent_message"
	EventToolCall         EventKind = "tool_call"
	EventToolResult       EventKind = "tool_result"
	EventSystemPrompt     EventKind = "system_prompt"
	EventCompactionMarker EventKind = "compaction_marker"
)

// Outcome classifies how a tool invocation terminated.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeDenied    Outcome = "denied"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// ErrorKind refines OutcomeError for tool results.
type ErrorKind string

const (
	ErrorKindUnknownTool ErrorKind = "unknown_tool"
	ErrorKindBadInput    ErrorKind = "bad_input"
	ErrorKindRuntime     ErrorKind = "runtime"
)

// ContentBlock is one typed chunk of tool result content.
type ContentBlock struct {
	Type      string          `json:"type"` // "text", "image" or "structured"
	Text      string          `json:"text,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TextBlock is a convenience constructor for plain text content.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// Usage carries the token counts reported by the provider for one response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// UserMessagePayload is the payload of an EventUserMessage.
type UserMessagePayload struct {
	Text string `json:"text"`
}

// AgentMessagePayload is the payload of an EventAgentMessage. Reasoning holds
// think-tagged output verbatim; consumers that did not opt in only see Text.
type AgentMessagePayload struct {
	Text      string `json:"text"`
	Reasoning string `json:"reasoning,omitempty"`
	Usage     Usage  `json:"usage"`
}

// ToolCallPayload is the payload of an EventToolCall.
type ToolCallPayload struct {
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input"`
}

// ToolResultPayload is the payload of an EventToolResult. CallID pairs the
// result with a prior tool call in the same thread.
type ToolResultPayload struct {
	CallID    string         `json:"call_id"`
	Outcome   Outcome        `json:"outcome"`
	ErrorKind ErrorKind      `json:"error_kind,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// SystemPromptPayload is the payload of an EventSystemPrompt.
type SystemPromptPayload struct {
	Text string `json:"text"`
	Role string `json:"role,omitempty"`
}

// CompactionMarkerPayload heads a successor thread and references the span of
// the source thread it summarizes.
type CompactionMarkerPayload struct {
	SourceThreadID string `json:"source_thread_id"`
	Summary        string `json:"summary"`
	FirstEventID   int64  `json:"first_event_id"`
	LastEventID    int64  `json:"last_event_id"`
}

// Payload is a union of the kind-specific payloads. Exactly one field is
// non-nil for a given event kind.
type Payload struct {
	UserMessage      *UserMessagePayload      `json:"user_message,omitempty"`
	AgentMessage     *AgentMessagePayload     `json:"agent_message,omitempty"`
	ToolCall         *ToolCallPayload         `json:"tool_call,omitempty"`
	ToolResult       *ToolResultPayload       `json:"tool_result,omitempty"`
	SystemPrompt     *SystemPromptPayload     `json:"system_prompt,omitempty"`
	CompactionMarker *CompactionMarkerPayload `json:"compaction_marker,omitempty"`
}

// ThreadEvent is one immutable entry in a thread's event log. ID is assigned
// by the store and is strictly monotonic and contiguous within a thread.
type ThreadEvent struct {
	ID        int64     `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Payload   Payload   `json:"payload"`
}

// Validate checks that the payload union matches the declared kind.
func (e *ThreadEvent) Validate() error {
	var ok bool
	switch e.Kind {
	case EventUserMessage:
		ok = e.Payload.UserMessage != nil
	case EventAgentMessage:
		ok = e.Payload.AgentMessage != nil
	case EventToolCall:
		ok = e.Payload.ToolCall != nil
	case EventToolResult:
		ok = e.Payload.ToolResult != nil
	case EventSystemPrompt:
		ok = e.Payload.SystemPrompt != nil
	case EventCompactionMarker:
		ok = e.Payload.CompactionMarker != nil
	default:
		return errors.Errorf("unknown event kind: %s", e.Kind)
	}
	if !ok {
		return errors.Errorf("event kind %s has no matching payload", e.Kind)
	}
	return nil
}
