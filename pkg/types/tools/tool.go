// Package tools defines the tool contract: descriptors with declared input
// schemas and safety annotations, the execution context handed to every
// invocation, and the structured result shape captured into the event log.
package tools

import (
	"context"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/lacehq/lace/pkg/types/threads"
)

// Annotations declare the safety properties of a tool. The approval gate and
// the executor derive their defaults from these.
type Annotations struct {
	// ReadOnly tools never mutate state outside the conversation.
	ReadOnly bool
	// Destructive tools may delete or overwrite data irreversibly.
	Destructive bool
	// Idempotent tools can be retried without additional effect.
	Idempotent bool
	// RequiresApproval forces the gate to ask even when policy would allow.
	RequiresApproval bool
	// ParallelSafe tools may run concurrently with other calls of the same
	// turn; a single non-parallel-safe tool serializes the whole batch.
	ParallelSafe bool
}

// Result is what a tool invocation produces. Failures are data, not errors:
// the executor maps every failure mode onto Outcome and ErrorKind.
type Result struct {
	Outcome   threads.Outcome
	ErrorKind threads.ErrorKind
	Content   []threads.ContentBlock
}

// TextResult builds a successful result with a single text block.
func TextResult(text string) Result {
	return Result{
		Outcome: threads.OutcomeSuccess,
		Content: []threads.ContentBlock{threads.TextBlock(text)},
	}
}

// ErrorResult builds a failed result with the given kind and message.
func ErrorResult(kind threads.ErrorKind, msg string) Result {
	return Result{
		Outcome:   threads.OutcomeError,
		ErrorKind: kind,
		Content:   []threads.ContentBlock{threads.TextBlock(msg)},
	}
}

// Delegator spawns a constrained child agent for a bounded sub-task and
// returns its final summary. Implemented by the agent package; injected via
// ExecContext so tools never hold an agent reference.
type Delegator interface {
	Delegate(ctx context.Context, task string, constraints DelegateConstraints) (string, error)
}

// DelegateConstraints narrow what a delegate child may do.
type DelegateConstraints struct {
	// Tools restricts the child to a subset of registered tool names.
	// Empty means the parent's tool set minus the delegate tool itself.
	Tools []string
	// UseWeakModel selects the cheaper model for the child.
	UseWeakModel bool
}

// ExecContext carries per-turn state into tool invocations.
type ExecContext struct {
	// ThreadID of the conversation the call belongs to.
	ThreadID string
	// TurnID scopes approval decisions; identical calls within one turn
	// reuse an earlier grant.
	TurnID string
	// WorkingDir anchors relative paths for file tools.
	WorkingDir string
	// Delegator is non-nil when the delegate tool is available.
	Delegator Delegator
}

// Tool is a value carrying its schema and an invoke function. Registration
// happens at startup; the registry is read-mostly afterwards.
type Tool interface {
	Name() string
	Description() string
	// GenerateSchema declares the input shape. Validation is exact: unknown
	// fields are rejected by the executor.
	GenerateSchema() *jsonschema.Schema
	Annotations() Annotations
	// Timeout returns the per-call timeout; zero means the executor default.
	Timeout() time.Duration
	// Execute runs the tool. Input has already been schema-validated.
	// Implementations must honor ctx cancellation at I/O boundaries.
	Execute(ctx context.Context, execCtx ExecContext, input string) Result
}
