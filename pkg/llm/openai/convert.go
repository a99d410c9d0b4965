package openai

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	llmtypes "github.com/lacehq/lace/pkg/types/llm"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

// convertMessages maps the generic conversation to chat completion messages.
// Assistant tool uses ride on the assistant message as tool_calls; each tool
// result becomes its own role=tool message keyed by ToolCallID.
func convertMessages(system string, messages []llmtypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		switch msg.Role {
		case llmtypes.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Text(),
			})
		case llmtypes.RoleAssistant:
			converted := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text(),
			}
			for _, b := range msg.Blocks {
				if b.Type != llmtypes.BlockToolUse {
					continue
				}
				converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
					ID:   b.ToolUse.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.ToolUse.Name,
						Arguments: string(b.ToolUse.Input),
					},
				})
			}
			out = append(out, converted)
		case llmtypes.RoleToolResult:
			for _, b := range msg.Blocks {
				if b.Type != llmtypes.BlockToolResult {
					continue
				}
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    flattenContent(b.ToolResult.Content),
					ToolCallID: b.ToolResult.ID,
				})
			}
		}
	}
	return out
}

func flattenContent(blocks []threadtypes.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

func convertTools(tools []llmtypes.ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var params map[string]interface{}
		_ = json.Unmarshal(tool.InputSchema, &params)
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

func convertFinishReason(reason openai.FinishReason) llmtypes.StopReason {
	switch reason {
	case openai.FinishReasonToolCalls:
		return llmtypes.StopToolUse
	case openai.FinishReasonLength:
		return llmtypes.StopLength
	default:
		return llmtypes.StopEnd
	}
}

func convertResponse(resp openai.ChatCompletionResponse) llmtypes.Response {
	out := llmtypes.Message{Role: llmtypes.RoleAssistant}
	stopReason := llmtypes.StopEnd
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.ReasoningContent != "" {
			out.Blocks = append(out.Blocks, llmtypes.ThinkingBlock(choice.Message.ReasoningContent))
		}
		if choice.Message.Content != "" {
			out.Blocks = append(out.Blocks, llmtypes.TextBlock(choice.Message.Content))
		}
		for _, tc := range choice.Message.ToolCalls {
			out.Blocks = append(out.Blocks, llmtypes.Block{
				Type: llmtypes.BlockToolUse,
				ToolUse: &llmtypes.ToolUseBlock{
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: json.RawMessage(tc.Function.Arguments),
				},
			})
		}
		stopReason = convertFinishReason(choice.FinishReason)
	}
	return llmtypes.Response{
		Message:    out,
		StopReason: stopReason,
		Usage: llmtypes.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}
