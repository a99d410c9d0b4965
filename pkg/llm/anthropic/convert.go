package anthropic

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	llmtypes "github.com/lacehq/lace/pkg/types/llm"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

// convertMessages maps the generic conversation to Anthropic message params.
// Tool results become user messages with tool_result blocks, paired to the
// originating call by ID. Thinking blocks are not replayed; the API rejects
// unsigned thinking content on resend.
func convertMessages(messages []llmtypes.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range msg.Blocks {
			switch b.Type {
			case llmtypes.BlockText:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case llmtypes.BlockToolUse:
				input := map[string]any{}
				if len(b.ToolUse.Input) > 0 {
					_ = json.Unmarshal(b.ToolUse.Input, &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUse.ID, input, b.ToolUse.Name))
			case llmtypes.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(
					b.ToolResult.ID,
					flattenContent(b.ToolResult.Content),
					b.ToolResult.Outcome != threadtypes.OutcomeSuccess,
				))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch msg.Role {
		case llmtypes.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
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

// inputSchema is the subset of a JSON schema document the API accepts.
type inputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

func convertTools(tools []llmtypes.ToolDescriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		var schema inputSchema
		_ = json.Unmarshal(tool.InputSchema, &schema)
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		}
	}
	return out
}

func convertStopReason(reason string) llmtypes.StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llmtypes.StopEnd
	case "tool_use":
		return llmtypes.StopToolUse
	case "max_tokens":
		return llmtypes.StopLength
	default:
		return llmtypes.StopEnd
	}
}

func convertResponse(msg *anthropic.Message) llmtypes.Response {
	out := llmtypes.Message{Role: llmtypes.RoleAssistant}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Blocks = append(out.Blocks, llmtypes.TextBlock(variant.Text))
		case anthropic.ThinkingBlock:
			out.Blocks = append(out.Blocks, llmtypes.ThinkingBlock(variant.Thinking))
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			out.Blocks = append(out.Blocks, llmtypes.Block{
				Type: llmtypes.BlockToolUse,
				ToolUse: &llmtypes.ToolUseBlock{
					ID:    variant.ID,
					Name:  variant.Name,
					Input: input,
				},
			})
		}
	}
	return llmtypes.Response{
		Message:    out,
		StopReason: convertStopReason(string(msg.StopReason)),
		Usage: llmtypes.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}
