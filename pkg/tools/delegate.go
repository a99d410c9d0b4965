package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"

	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

// DelegateTool hands a bounded sub-task to a child agent on a fresh thread.
// The child shares the executor and provider but may run a cheaper model and
// a reduced tool set; only its final summary comes back.
type DelegateTool struct{}

// DelegateInput is the declared input shape of delegate.
type DelegateInput struct {
	Task string `json:"task" jsonschema:"description=A detailed, context-rich description of the sub-task"`
}

func (t *DelegateTool) Name() string {
	return "delegate"
}

func (t *DelegateTool) Description() string {
	return `Use this tool to delegate a bounded sub-task to a child agent.

The child has no memory of this conversation and you cannot talk to it back
and forth, so the task description must be self-contained: state the goal,
the relevant context, and the exact information you expect back. You receive
a single text summary; the child's internal messages are not visible to you.`
}

func (t *DelegateTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[DelegateInput]()
}

func (t *DelegateTool) Annotations() tooltypes.Annotations {
	// Delegation drives provider calls and tool use of its own; never run
	// two delegates of one turn concurrently.
	return tooltypes.Annotations{RequiresApproval: false, ReadOnly: true}
}

func (t *DelegateTool) Timeout() time.Duration {
	return 5 * time.Minute
}

func (t *DelegateTool) Execute(ctx context.Context, execCtx tooltypes.ExecContext, input string) tooltypes.Result {
	var in DelegateInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return tooltypes.ErrorResult("bad_input", err.Error())
	}
	if execCtx.Delegator == nil {
		return tooltypes.ErrorResult("runtime", "delegation is not available in this context")
	}

	summary, err := execCtx.Delegator.Delegate(ctx, in.Task, tooltypes.DelegateConstraints{
		UseWeakModel: true,
	})
	if err != nil {
		return tooltypes.ErrorResult("runtime", err.Error())
	}
	return tooltypes.TextResult(summary)
}
