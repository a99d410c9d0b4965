package tools

import tooltypes "github.com/lacehq/lace/pkg/types/tools"

// DefaultTools returns the built-in tool set.
func DefaultTools() []tooltypes.Tool {
	return []tooltypes.Tool{
		&ReadFileTool{},
		&WriteFileTool{},
		&ListDirTool{},
		&ThinkingTool{},
		&DelegateTool{},
	}
}
