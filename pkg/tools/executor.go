package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lacehq/lace/pkg/approval"
	"github.com/lacehq/lace/pkg/logger"
	"github.com/lacehq/lace/pkg/telemetry"
	"github.com/lacehq/lace/pkg/types/threads"
	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

// CallState tracks one invocation through the executor pipeline. Every
// non-terminal state is one hop away from a terminal one.
type CallState string

const (
	CallNew              CallState = "new"
	CallAwaitingApproval CallState = "awaiting_approval"
	CallApproved         CallState = "approved"
	CallRunning          CallState = "running"
	CallDone             CallState = "done"
	CallFailed           CallState = "failed"
	CallTimedOut         CallState = "timed_out"
	CallCancelled        CallState = "cancelled"
	CallDenied           CallState = "denied"
)

// Call is one tool invocation request extracted from a provider response.
type Call struct {
	ID    string
	Name  string
	Input string
}

// DefaultToolTimeout applies when a tool declares no timeout of its own.
const DefaultToolTimeout = 60 * time.Second

var tracer = telemetry.Tracer("lace.tools")

// Executor validates input, consults the approval gate, and runs tools under
// timeout and the turn's cancellation signal. Every failure mode is captured
// as a structured result; nothing escapes as an error to the agent loop.
type Executor struct {
	registry       *Registry
	gate           *approval.Gate
	defaultTimeout time.Duration

	// onState observes per-call state transitions; used by the agent for
	// progress events and by tests. May be nil.
	onState func(callID string, state CallState)
}

// NewExecutor creates an executor over the registry and gate.
func NewExecutor(registry *Registry, gate *approval.Gate) *Executor {
	return &Executor{
		registry:       registry,
		gate:           gate,
		defaultTimeout: DefaultToolTimeout,
	}
}

// SetDefaultTimeout overrides the executor-wide per-tool timeout.
func (e *Executor) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		e.defaultTimeout = d
	}
}

// SetStateObserver registers the call state transition observer.
func (e *Executor) SetStateObserver(fn func(callID string, state CallState)) {
	e.onState = fn
}

func (e *Executor) setState(callID string, state CallState) {
	if e.onState != nil {
		e.onState(callID, state)
	}
}

func errorPayload(call Call, kind threads.ErrorKind, msg string, started time.Time) threads.ToolResultPayload {
	return threads.ToolResultPayload{
		CallID:    call.ID,
		Outcome:   threads.OutcomeError,
		ErrorKind: kind,
		Content:   []threads.ContentBlock{threads.TextBlock(msg)},
		Duration:  time.Since(started),
	}
}

func terminalPayload(call Call, outcome threads.Outcome, msg string, started time.Time) threads.ToolResultPayload {
	payload := threads.ToolResultPayload{
		CallID:   call.ID,
		Outcome:  outcome,
		Duration: time.Since(started),
	}
	if msg != "" {
		payload.Content = []threads.ContentBlock{threads.TextBlock(msg)}
	}
	return payload
}

// Execute drives one call through the pipeline: resolve, validate, approval,
// invoke, capture. The returned payload always carries the call id so the
// caller can pair it with its tool call event.
func (e *Executor) Execute(ctx context.Context, call Call, execCtx tooltypes.ExecContext) threads.ToolResultPayload {
	started := time.Now()
	e.setState(call.ID, CallNew)

	ctx, span := tracer.Start(ctx, fmt.Sprintf("tools.execute.%s", call.Name),
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
		),
	)
	defer span.End()

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.setState(call.ID, CallFailed)
		span.SetStatus(codes.Error, "unknown tool")
		return errorPayload(call, threads.ErrorKindUnknownTool,
			fmt.Sprintf("unknown tool: %s", call.Name), started)
	}

	if err := ValidateInput(tool, call.Input); err != nil {
		e.setState(call.ID, CallFailed)
		span.SetStatus(codes.Error, "invalid input")
		return errorPayload(call, threads.ErrorKindBadInput, err.Error(), started)
	}

	switch e.gate.Decide(execCtx.TurnID, tool.Annotations(), call.Name, call.Input) {
	case approval.DecisionDeny:
		e.setState(call.ID, CallDenied)
		return terminalPayload(call, threads.OutcomeDenied,
			fmt.Sprintf("tool %s denied by policy", call.Name), started)
	case approval.DecisionAsk:
		e.setState(call.ID, CallAwaitingApproval)
		approved, err := e.gate.Await(ctx, execCtx.TurnID, call.Name, call.Input)
		if err != nil {
			if ctx.Err() != nil {
				e.setState(call.ID, CallCancelled)
				return terminalPayload(call, threads.OutcomeCancelled, "approval cancelled", started)
			}
			e.setState(call.ID, CallDenied)
			return terminalPayload(call, threads.OutcomeDenied, err.Error(), started)
		}
		if !approved {
			e.setState(call.ID, CallDenied)
			return terminalPayload(call, threads.OutcomeDenied,
				fmt.Sprintf("tool %s denied by user", call.Name), started)
		}
	}
	e.setState(call.ID, CallApproved)

	timeout := tool.Timeout()
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.setState(call.ID, CallRunning)
	logger.G(ctx).WithFields(map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
	}).Debug("running tool")

	// Run on a separate goroutine so a hung tool cannot block the turn past
	// its timeout. The goroutine owns its result channel; a late result is
	// dropped.
	resultCh := make(chan tooltypes.Result, 1)
	go func() {
		resultCh <- tool.Execute(toolCtx, execCtx, call.Input)
	}()

	select {
	case result := <-resultCh:
		return e.capture(span, call, result, started)
	case <-toolCtx.Done():
		if ctx.Err() != nil {
			e.setState(call.ID, CallCancelled)
			span.SetStatus(codes.Error, "cancelled")
			return terminalPayload(call, threads.OutcomeCancelled, "turn cancelled", started)
		}
		e.setState(call.ID, CallTimedOut)
		span.SetStatus(codes.Error, "timeout")
		return terminalPayload(call, threads.OutcomeTimeout,
			fmt.Sprintf("tool %s exceeded timeout of %s", call.Name, timeout), started)
	}
}

func (e *Executor) capture(span trace.Span, call Call, result tooltypes.Result, started time.Time) threads.ToolResultPayload {
	payload := threads.ToolResultPayload{
		CallID:    call.ID,
		Outcome:   result.Outcome,
		ErrorKind: result.ErrorKind,
		Content:   result.Content,
		Duration:  time.Since(started),
	}
	switch result.Outcome {
	case threads.OutcomeSuccess:
		e.setState(call.ID, CallDone)
		span.SetStatus(codes.Ok, "")
	case threads.OutcomeCancelled:
		e.setState(call.ID, CallCancelled)
		span.SetStatus(codes.Error, "cancelled")
	case threads.OutcomeTimeout:
		e.setState(call.ID, CallTimedOut)
		span.SetStatus(codes.Error, "timeout")
	default:
		e.setState(call.ID, CallFailed)
		span.SetStatus(codes.Error, string(result.ErrorKind))
	}
	return payload
}

// ExecuteAll dispatches a batch of calls from one turn. Calls run
// concurrently only when every resolvable tool in the batch declares itself
// parallel-safe; otherwise they run serially in emission order. Results are
// delivered on the returned channel in completion order, each carrying its
// call id; the channel closes when all calls are terminal.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call, execCtx tooltypes.ExecContext) <-chan threads.ToolResultPayload {
	out := make(chan threads.ToolResultPayload, len(calls))

	parallel := len(calls) > 1
	for _, call := range calls {
		tool, ok := e.registry.Get(call.Name)
		if !ok || !tool.Annotations().ParallelSafe {
			parallel = false
			break
		}
	}

	if !parallel {
		go func() {
			defer close(out)
			for _, call := range calls {
				out <- e.Execute(ctx, call, execCtx)
			}
		}()
		return out
	}

	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(call Call) {
			defer wg.Done()
			out <- e.Execute(ctx, call, execCtx)
		}(call)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
