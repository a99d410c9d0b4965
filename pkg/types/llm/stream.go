package llm

import "github.com/lacehq/lace/pkg/types/threads"

// StopReason reports why a provider response finished.
type StopReason string

const (
	StopEnd       StopReason = "end"
	StopToolUse   StopReason = "tool_use"
	StopLength    StopReason = "length"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "error"
)

// StreamEventType discriminates StreamEvent.
type StreamEventType string

const (
	StreamTextDelta     StreamEventType = "text_delta"
	StreamThinkingDelta StreamEventType = "thinking_delta"
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	StreamUsageUpdate   StreamEventType = "usage_update"
	StreamFinished      StreamEventType = "finished"
)

// ToolCallDelta is a fragment of a tool call. Input JSON may be split across
// several deltas with the same CallID; consumers accumulate until Finished.
type ToolCallDelta struct {
	CallID        string
	Name          string
	InputFragment string
}

// StreamEvent is the normalized provider event yielded by every adapter
// regardless of backend. Exactly one payload field is meaningful per Type.
type StreamEvent struct {
	Type     StreamEventType
	Text     string
	ToolCall *ToolCallDelta
	Usage    *threads.Usage

	// Finished fields.
	StopReason StopReason
	Err        error
}

// TextDeltaEvent constructs a text delta event.
func TextDeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: StreamTextDelta, Text: text}
}

// ThinkingDeltaEvent constructs a reasoning delta event.
func ThinkingDeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: StreamThinkingDelta, Text: text}
}

// ToolCallDeltaEvent constructs a tool call fragment event.
func ToolCallDeltaEvent(callID, name, fragment string) StreamEvent {
	return StreamEvent{Type: StreamToolCallDelta, ToolCall: &ToolCallDelta{
		CallID:        callID,
		Name:          name,
		InputFragment: fragment,
	}}
}

// UsageUpdateEvent constructs a usage update event.
func UsageUpdateEvent(input, output int) StreamEvent {
	return StreamEvent{Type: StreamUsageUpdate, Usage: &threads.Usage{
		InputTokens:  input,
		OutputTokens: output,
	}}
}

// FinishedEvent constructs a terminal event.
func FinishedEvent(reason StopReason, err error) StreamEvent {
	return StreamEvent{Type: StreamFinished, StopReason: reason, Err: err}
}
