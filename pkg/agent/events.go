package agent

import (
	"github.com/lacehq/lace/pkg/approval"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

// State of the agent's turn machine. Terminal states collapse back to
// StateIdle before SendMessage returns.
type State string

const (
	StateIdle          State = "idle"
	StateThinking      State = "thinking"
	StateStreaming     State = "streaming"
	StateToolExecution State = "tool_execution"
	StateComplete      State = "complete"
	StateCancelled     State = "cancelled"
	StateErrored       State = "errored"
)

// EventType discriminates Event.
type EventType string

const (
	// EventStateChange reports a state machine transition.
	EventStateChange EventType = "state_change"
	// EventTextDelta carries ephemeral streamed assistant text. Deltas are
	// not persisted; the assembled message is.
	EventTextDelta EventType = "text_delta"
	// EventThinkingDelta carries ephemeral streamed reasoning.
	EventThinkingDelta EventType = "thinking_delta"
	// EventToolCallStarted fires when a tool call is dispatched.
	EventToolCallStarted EventType = "tool_call_started"
	// EventToolCallFinished fires when a tool result is persisted.
	EventToolCallFinished EventType = "tool_call_finished"
	// EventResponseComplete carries the final assistant text of a turn.
	EventResponseComplete EventType = "response_complete"
	// EventApprovalRequested carries a pending approval ticket.
	EventApprovalRequested EventType = "approval_requested"
	// EventTurnError reports a fatal turn failure.
	EventTurnError EventType = "turn_error"
)

// Event is one observable agent occurrence delivered to subscribers. Fields
// beyond Type are populated per type; deltas and state changes are ephemeral
// and never persisted.
type Event struct {
	Type  EventType
	State State

	// Text holds delta content or the final response text.
	Text string

	// Tool call fields.
	CallID   string
	ToolName string
	Outcome  threadtypes.Outcome

	// Ticket is set on approval_requested events.
	Ticket *approval.Ticket

	// Err is set on turn_error events.
	Err error
}
