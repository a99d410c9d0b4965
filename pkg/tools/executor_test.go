package tools

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacehq/lace/pkg/approval"
	"github.com/lacehq/lace/pkg/types/threads"
	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

type fakeInput struct {
	Message string `json:"message"`
}

type fakeTool struct {
	name        string
	annotations tooltypes.Annotations
	timeout     time.Duration
	execute     func(ctx context.Context, execCtx tooltypes.ExecContext, input string) tooltypes.Result
}

func (f *fakeTool) Name() string                       { return f.name }
func (f *fakeTool) Description() string                { return "test tool" }
func (f *fakeTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[fakeInput]() }
func (f *fakeTool) Annotations() tooltypes.Annotations { return f.annotations }
func (f *fakeTool) Timeout() time.Duration             { return f.timeout }
func (f *fakeTool) Execute(ctx context.Context, execCtx tooltypes.ExecContext, input string) tooltypes.Result {
	if f.execute != nil {
		return f.execute(ctx, execCtx, input)
	}
	return tooltypes.TextResult("ok")
}

func newTestExecutor(t *testing.T, policy approval.Policy, testTools ...tooltypes.Tool) (*Executor, *approval.Gate) {
	t.Helper()
	registry := NewRegistry()
	for _, tool := range testTools {
		require.NoError(t, registry.Register(tool))
	}
	gate := approval.NewGate(policy)
	return NewExecutor(registry, gate), gate
}

func execCtx() tooltypes.ExecContext {
	return tooltypes.ExecContext{ThreadID: "t1", TurnID: "turn-1"}
}

func TestExecuteUnknownTool(t *testing.T) {
	executor, _ := newTestExecutor(t, approval.Policy{})

	result := executor.Execute(context.Background(), Call{ID: "c1", Name: "nope", Input: "{}"}, execCtx())
	assert.Equal(t, "c1", result.CallID)
	assert.Equal(t, threads.OutcomeError, result.Outcome)
	assert.Equal(t, threads.ErrorKindUnknownTool, result.ErrorKind)
}

func TestExecuteRejectsUnknownFields(t *testing.T) {
	tool := &fakeTool{name: "echo", annotations: tooltypes.Annotations{ReadOnly: true}}
	executor, _ := newTestExecutor(t, approval.Policy{}, tool)

	result := executor.Execute(context.Background(),
		Call{ID: "c1", Name: "echo", Input: `{"message":"hi","extra":1}`}, execCtx())
	assert.Equal(t, threads.OutcomeError, result.Outcome)
	assert.Equal(t, threads.ErrorKindBadInput, result.ErrorKind)
}

func TestExecuteRejectsMalformedJSON(t *testing.T) {
	tool := &fakeTool{name: "echo", annotations: tooltypes.Annotations{ReadOnly: true}}
	executor, _ := newTestExecutor(t, approval.Policy{}, tool)

	result := executor.Execute(context.Background(),
		Call{ID: "c1", Name: "echo", Input: `{"message":`}, execCtx())
	assert.Equal(t, threads.OutcomeError, result.Outcome)
	assert.Equal(t, threads.ErrorKindBadInput, result.ErrorKind)
}

func TestExecuteSuccess(t *testing.T) {
	tool := &fakeTool{name: "echo", annotations: tooltypes.Annotations{ReadOnly: true}}
	executor, _ := newTestExecutor(t, approval.Policy{}, tool)

	result := executor.Execute(context.Background(),
		Call{ID: "c1", Name: "echo", Input: `{"message":"hi"}`}, execCtx())
	assert.Equal(t, threads.OutcomeSuccess, result.Outcome)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok", result.Content[0].Text)
	assert.NotZero(t, result.Duration)
}

func TestExecuteDeniedByPolicy(t *testing.T) {
	tool := &fakeTool{name: "echo", annotations: tooltypes.Annotations{ReadOnly: true}}
	executor, _ := newTestExecutor(t, approval.Policy{AutoDeny: []string{"echo"}}, tool)

	result := executor.Execute(context.Background(),
		Call{ID: "c1", Name: "echo", Input: `{"message":"hi"}`}, execCtx())
	assert.Equal(t, threads.OutcomeDenied, result.Outcome)
}

func TestExecuteAskApproved(t *testing.T) {
	ran := false
	tool := &fakeTool{
		name:        "danger",
		annotations: tooltypes.Annotations{Destructive: true},
		execute: func(context.Context, tooltypes.ExecContext, string) tooltypes.Result {
			ran = true
			return tooltypes.TextResult("done")
		},
	}
	executor, gate := newTestExecutor(t, approval.Policy{}, tool)
	gate.SetResponder(func(ticket *approval.Ticket) {
		go ticket.Resolve(true)
	})

	result := executor.Execute(context.Background(),
		Call{ID: "c1", Name: "danger", Input: `{"message":"x"}`}, execCtx())
	assert.Equal(t, threads.OutcomeSuccess, result.Outcome)
	assert.True(t, ran)
}

func TestExecuteAskDenied(t *testing.T) {
	tool := &fakeTool{name: "danger", annotations: tooltypes.Annotations{Destructive: true}}
	executor, gate := newTestExecutor(t, approval.Policy{}, tool)
	gate.SetResponder(func(ticket *approval.Ticket) {
		go ticket.Resolve(false)
	})

	result := executor.Execute(context.Background(),
		Call{ID: "c1", Name: "danger", Input: `{"message":"x"}`}, execCtx())
	assert.Equal(t, threads.OutcomeDenied, result.Outcome)
}

func TestExecuteTimeout(t *testing.T) {
	tool := &fakeTool{
		name:        "slow",
		annotations: tooltypes.Annotations{ReadOnly: true},
		timeout:     20 * time.Millisecond,
		execute: func(ctx context.Context, _ tooltypes.ExecContext, _ string) tooltypes.Result {
			select {
			case <-time.After(time.Second):
				return tooltypes.TextResult("too late")
			case <-ctx.Done():
				return tooltypes.Result{Outcome: threads.OutcomeCancelled}
			}
		},
	}
	executor, _ := newTestExecutor(t, approval.Policy{}, tool)

	result := executor.Execute(context.Background(),
		Call{ID: "c1", Name: "slow", Input: `{"message":"x"}`}, execCtx())
	assert.Equal(t, threads.OutcomeTimeout, result.Outcome)
}

func TestExecuteParentCancellation(t *testing.T) {
	started := make(chan struct{})
	tool := &fakeTool{
		name:        "slow",
		annotations: tooltypes.Annotations{ReadOnly: true},
		timeout:     time.Minute,
		execute: func(ctx context.Context, _ tooltypes.ExecContext, _ string) tooltypes.Result {
			close(started)
			<-ctx.Done()
			return tooltypes.Result{Outcome: threads.OutcomeCancelled}
		},
	}
	executor, _ := newTestExecutor(t, approval.Policy{}, tool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result := executor.Execute(ctx, Call{ID: "c1", Name: "slow", Input: `{"message":"x"}`}, execCtx())
	assert.Equal(t, threads.OutcomeCancelled, result.Outcome)
}

func TestExecuteStateTransitions(t *testing.T) {
	tool := &fakeTool{name: "echo", annotations: tooltypes.Annotations{ReadOnly: true}}
	executor, _ := newTestExecutor(t, approval.Policy{}, tool)

	var mu sync.Mutex
	var states []CallState
	executor.SetStateObserver(func(callID string, state CallState) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	executor.Execute(context.Background(), Call{ID: "c1", Name: "echo", Input: `{"message":"x"}`}, execCtx())
	assert.Equal(t, []CallState{CallNew, CallApproved, CallRunning, CallDone}, states)
}

func TestExecuteAllSerializesWhenNotParallelSafe(t *testing.T) {
	var mu sync.Mutex
	var running int
	var maxRunning int
	track := func(ctx context.Context, _ tooltypes.ExecContext, _ string) tooltypes.Result {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return tooltypes.TextResult("ok")
	}
	serial := &fakeTool{name: "serial", annotations: tooltypes.Annotations{ReadOnly: true}, execute: track}
	executor, _ := newTestExecutor(t, approval.Policy{}, serial)

	calls := []Call{
		{ID: "c1", Name: "serial", Input: `{"message":"a"}`},
		{ID: "c2", Name: "serial", Input: `{"message":"b"}`},
		{ID: "c3", Name: "serial", Input: `{"message":"c"}`},
	}
	var results []threads.ToolResultPayload
	for payload := range executor.ExecuteAll(context.Background(), calls, execCtx()) {
		results = append(results, payload)
	}

	require.Len(t, results, 3)
	assert.Equal(t, 1, maxRunning)
	// Serial dispatch preserves emission order.
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, "c3", results[2].CallID)
}

func TestExecuteAllRunsParallelSafeConcurrently(t *testing.T) {
	var mu sync.Mutex
	var running int
	var maxRunning int
	track := func(ctx context.Context, _ tooltypes.ExecContext, _ string) tooltypes.Result {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return tooltypes.TextResult("ok")
	}
	parallel := &fakeTool{
		name:        "parallel",
		annotations: tooltypes.Annotations{ReadOnly: true, ParallelSafe: true},
		execute:     track,
	}
	executor, _ := newTestExecutor(t, approval.Policy{}, parallel)

	calls := []Call{
		{ID: "c1", Name: "parallel", Input: `{"message":"a"}`},
		{ID: "c2", Name: "parallel", Input: `{"message":"b"}`},
	}
	seen := map[string]bool{}
	for payload := range executor.ExecuteAll(context.Background(), calls, execCtx()) {
		seen[payload.CallID] = true
	}

	assert.True(t, seen["c1"] && seen["c2"])
	assert.Greater(t, maxRunning, 1)
}

func TestExecuteAllEveryCallGetsResult(t *testing.T) {
	tool := &fakeTool{name: "echo", annotations: tooltypes.Annotations{ReadOnly: true}}
	executor, _ := newTestExecutor(t, approval.Policy{}, tool)

	calls := []Call{
		{ID: "c1", Name: "echo", Input: `{"message":"a"}`},
		{ID: "c2", Name: "missing", Input: `{}`},
	}
	var outcomes []threads.Outcome
	for payload := range executor.ExecuteAll(context.Background(), calls, execCtx()) {
		outcomes = append(outcomes, payload.Outcome)
	}
	require.Len(t, outcomes, 2)
}
