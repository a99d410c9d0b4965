// Package llm defines the provider-agnostic conversation types: generic
// messages with typed content blocks, the normalized streaming event shape,
// and the Provider contract implemented by vendor adapters. No vendor types
// appear outside the adapter packages.
package llm

import (
	"encoding/json"

	"github.com/lacehq/lace/pkg/types/threads"
)

// Role of a generic message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSystem     Role = "system"
	RoleToolResult Role = "tool_result"
)

// BlockType discriminates Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ToolUseBlock is a tool invocation requested by the assistant.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock carries the outcome of a prior tool use, paired by ID.
type ToolResultBlock struct {
	ID      string                 `json:"id"`
	Outcome threads.Outcome        `json:"outcome"`
	Content []threads.ContentBlock `json:"content,omitempty"`
}

// Block is one typed content block of a generic message. Exactly one of the
// payload fields is set according to Type.
type Block struct {
	Type       BlockType        `json:"type"`
	Text       string           `json:"text,omitempty"`
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"`
}

// TextBlock constructs a text block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ThinkingBlock constructs a thinking block preserving reasoning verbatim.
func ThinkingBlock(text string) Block {
	return Block{Type: BlockThinking, Text: text}
}

// Message is one generic conversation message. Adapters must preserve block
// order and tool use/result ID pairing across round-trips.
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

// Text concatenates the text blocks of the message, skipping thinking
// content.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}
