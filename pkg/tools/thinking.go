package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"

	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

// ThinkingTool gives the model a scratchpad. It has no side effects; the
// thought lands in the event log through the tool call record itself.
type ThinkingTool struct{}

// ThinkingInput is the declared input shape of thinking.
type ThinkingInput struct {
	Thought string `json:"thought" jsonschema:"description=The thought to record"`
}

func (t *ThinkingTool) Name() string {
	return "thinking"
}

func (t *ThinkingTool) Description() string {
	return `Use this tool to think through a problem step by step before acting.
The thought is recorded but has no effect on the environment.`
}

func (t *ThinkingTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[ThinkingInput]()
}

func (t *ThinkingTool) Annotations() tooltypes.Annotations {
	return tooltypes.Annotations{ReadOnly: true, Idempotent: true, ParallelSafe: true}
}

func (t *ThinkingTool) Timeout() time.Duration {
	return 0
}

func (t *ThinkingTool) Execute(ctx context.Context, execCtx tooltypes.ExecContext, input string) tooltypes.Result {
	var in ThinkingInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return tooltypes.ErrorResult("bad_input", err.Error())
	}
	return tooltypes.TextResult("thought recorded")
}
