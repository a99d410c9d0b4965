package threads

import (
	llmtypes "github.com/lacehq/lace/pkg/types/llm"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

// BuildMessages converts a thread's event log into the system prompt and the
// generic message list sent to a provider adapter. The mapping is pure and
// deterministic: identical event sequences produce identical message lists.
//
// Ordering rules follow the persistence order of a turn: an agent message
// precedes its tool calls, which precede their results. Tool call events are
// folded into the assistant message that introduced them; tool results become
// tool_result messages in append order.
func BuildMessages(events []threadtypes.ThreadEvent) (system string, messages []llmtypes.Message) {
	for _, event := range events {
		switch event.Kind {
		case threadtypes.EventSystemPrompt:
			// The newest persona wins; earlier prompts stay in the log only.
			system = event.Payload.SystemPrompt.Text

		case threadtypes.EventUserMessage:
			messages = append(messages, llmtypes.Message{
				Role:   llmtypes.RoleUser,
				Blocks: []llmtypes.Block{llmtypes.TextBlock(event.Payload.UserMessage.Text)},
			})

		case threadtypes.EventAgentMessage:
			payload := event.Payload.AgentMessage
			var blocks []llmtypes.Block
			if payload.Reasoning != "" {
				blocks = append(blocks, llmtypes.ThinkingBlock(payload.Reasoning))
			}
			if payload.Text != "" {
				blocks = append(blocks, llmtypes.TextBlock(payload.Text))
			}
			messages = append(messages, llmtypes.Message{
				Role:   llmtypes.RoleAssistant,
				Blocks: blocks,
			})

		case threadtypes.EventToolCall:
			payload := event.Payload.ToolCall
			block := llmtypes.Block{
				Type: llmtypes.BlockToolUse,
				ToolUse: &llmtypes.ToolUseBlock{
					ID:    payload.CallID,
					Name:  payload.ToolName,
					Input: payload.Input,
				},
			}
			// Fold into the assistant message that requested the call; a
			// call without a preceding assistant message gets an empty one.
			if n := len(messages); n > 0 && messages[n-1].Role == llmtypes.RoleAssistant {
				messages[n-1].Blocks = append(messages[n-1].Blocks, block)
			} else {
				messages = append(messages, llmtypes.Message{
					Role:   llmtypes.RoleAssistant,
					Blocks: []llmtypes.Block{block},
				})
			}

		case threadtypes.EventToolResult:
			payload := event.Payload.ToolResult
			block := llmtypes.Block{
				Type: llmtypes.BlockToolResult,
				ToolResult: &llmtypes.ToolResultBlock{
					ID:      payload.CallID,
					Outcome: payload.Outcome,
					Content: payload.Content,
				},
			}
			// Consecutive results merge into one tool_result message so the
			// wire form pairs every result with the preceding call batch.
			if n := len(messages); n > 0 && messages[n-1].Role == llmtypes.RoleToolResult {
				messages[n-1].Blocks = append(messages[n-1].Blocks, block)
			} else {
				messages = append(messages, llmtypes.Message{
					Role:   llmtypes.RoleToolResult,
					Blocks: []llmtypes.Block{block},
				})
			}

		case threadtypes.EventCompactionMarker:
			payload := event.Payload.CompactionMarker
			messages = append(messages, llmtypes.Message{
				Role: llmtypes.RoleUser,
				Blocks: []llmtypes.Block{llmtypes.TextBlock(
					"Summary of the conversation so far:\n\n" + payload.Summary,
				)},
			})
		}
	}
	return system, messages
}
