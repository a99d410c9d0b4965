package threads

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmtypes "github.com/lacehq/lace/pkg/types/llm"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

func event(kind threadtypes.EventKind, payload threadtypes.Payload) threadtypes.ThreadEvent {
	return threadtypes.ThreadEvent{Kind: kind, Payload: payload}
}

func TestBuildMessagesSimpleExchange(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventSystemPrompt, threadtypes.Payload{SystemPrompt: &threadtypes.SystemPromptPayload{Text: "be brief"}}),
		event(threadtypes.EventUserMessage, threadtypes.Payload{UserMessage: &threadtypes.UserMessagePayload{Text: "hi"}}),
		event(threadtypes.EventAgentMessage, threadtypes.Payload{AgentMessage: &threadtypes.AgentMessagePayload{Text: "hello"}}),
	}

	system, messages := BuildMessages(events)
	assert.Equal(t, "be brief", system)
	require.Len(t, messages, 2)
	assert.Equal(t, llmtypes.RoleUser, messages[0].Role)
	assert.Equal(t, "hi", messages[0].Text())
	assert.Equal(t, llmtypes.RoleAssistant, messages[1].Role)
	assert.Equal(t, "hello", messages[1].Text())
}

func TestBuildMessagesNewestSystemPromptWins(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventSystemPrompt, threadtypes.Payload{SystemPrompt: &threadtypes.SystemPromptPayload{Text: "old persona"}}),
		event(threadtypes.EventUserMessage, threadtypes.Payload{UserMessage: &threadtypes.UserMessagePayload{Text: "hi"}}),
		event(threadtypes.EventSystemPrompt, threadtypes.Payload{SystemPrompt: &threadtypes.SystemPromptPayload{Text: "new persona"}}),
	}

	system, messages := BuildMessages(events)
	assert.Equal(t, "new persona", system)
	assert.Len(t, messages, 1)
}

func TestBuildMessagesFoldsToolCallsIntoAssistant(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventAgentMessage, threadtypes.Payload{AgentMessage: &threadtypes.AgentMessagePayload{Text: "let me check"}}),
		event(threadtypes.EventToolCall, threadtypes.Payload{ToolCall: &threadtypes.ToolCallPayload{
			CallID: "c1", ToolName: "read_file", Input: json.RawMessage(`{"path":"a.go"}`),
		}}),
		event(threadtypes.EventToolCall, threadtypes.Payload{ToolCall: &threadtypes.ToolCallPayload{
			CallID: "c2", ToolName: "read_file", Input: json.RawMessage(`{"path":"b.go"}`),
		}}),
	}

	_, messages := BuildMessages(events)
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, llmtypes.RoleAssistant, msg.Role)
	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, llmtypes.BlockText, msg.Blocks[0].Type)
	assert.Equal(t, "c1", msg.Blocks[1].ToolUse.ID)
	assert.Equal(t, "c2", msg.Blocks[2].ToolUse.ID)
}

func TestBuildMessagesToolCallWithoutAssistantGetsOwnMessage(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventUserMessage, threadtypes.Payload{UserMessage: &threadtypes.UserMessagePayload{Text: "go"}}),
		event(threadtypes.EventToolCall, threadtypes.Payload{ToolCall: &threadtypes.ToolCallPayload{
			CallID: "c1", ToolName: "thinking", Input: json.RawMessage(`{}`),
		}}),
	}

	_, messages := BuildMessages(events)
	require.Len(t, messages, 2)
	assert.Equal(t, llmtypes.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].Blocks, 1)
	assert.Equal(t, llmtypes.BlockToolUse, messages[1].Blocks[0].Type)
}

func TestBuildMessagesMergesConsecutiveToolResults(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventToolResult, threadtypes.Payload{ToolResult: &threadtypes.ToolResultPayload{
			CallID: "c1", Outcome: threadtypes.OutcomeSuccess,
		}}),
		event(threadtypes.EventToolResult, threadtypes.Payload{ToolResult: &threadtypes.ToolResultPayload{
			CallID: "c2", Outcome: threadtypes.OutcomeDenied,
		}}),
	}

	_, messages := BuildMessages(events)
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, llmtypes.RoleToolResult, msg.Role)
	require.Len(t, msg.Blocks, 2)
	assert.Equal(t, "c1", msg.Blocks[0].ToolResult.ID)
	assert.Equal(t, "c2", msg.Blocks[1].ToolResult.ID)
	assert.Equal(t, threadtypes.OutcomeDenied, msg.Blocks[1].ToolResult.Outcome)
}

func TestBuildMessagesCompactionMarkerBecomesUserSummary(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventCompactionMarker, threadtypes.Payload{CompactionMarker: &threadtypes.CompactionMarkerPayload{
			SourceThreadID: "src", Summary: "we discussed widgets",
		}}),
		event(threadtypes.EventUserMessage, threadtypes.Payload{UserMessage: &threadtypes.UserMessagePayload{Text: "continue"}}),
	}

	_, messages := BuildMessages(events)
	require.Len(t, messages, 2)
	assert.Equal(t, llmtypes.RoleUser, messages[0].Role)
	assert.Contains(t, messages[0].Text(), "we discussed widgets")
}

func TestBuildMessagesReasoningPrecedesText(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventAgentMessage, threadtypes.Payload{AgentMessage: &threadtypes.AgentMessagePayload{
			Text: "answer", Reasoning: "hmm",
		}}),
	}

	_, messages := BuildMessages(events)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Blocks, 2)
	assert.Equal(t, llmtypes.BlockThinking, messages[0].Blocks[0].Type)
	assert.Equal(t, "hmm", messages[0].Blocks[0].Text)
	assert.Equal(t, llmtypes.BlockText, messages[0].Blocks[1].Type)
}

func TestBuildMessagesDeterministic(t *testing.T) {
	events := []threadtypes.ThreadEvent{
		event(threadtypes.EventUserMessage, threadtypes.Payload{UserMessage: &threadtypes.UserMessagePayload{Text: "hi"}}),
		event(threadtypes.EventAgentMessage, threadtypes.Payload{AgentMessage: &threadtypes.AgentMessagePayload{Text: "hello"}}),
		event(threadtypes.EventToolCall, threadtypes.Payload{ToolCall: &threadtypes.ToolCallPayload{
			CallID: "c1", ToolName: "read_file", Input: json.RawMessage(`{}`),
		}}),
	}

	systemA, messagesA := BuildMessages(events)
	systemB, messagesB := BuildMessages(events)
	assert.Equal(t, systemA, systemB)
	assert.Equal(t, messagesA, messagesB)
}
