// Package agent drives conversation turns: it reconstructs the thread,
// streams a provider response, persists the assembled events, executes tool
// calls through the executor, and loops until the model stops asking for
// tools. One agent owns one thread; delegate children get threads of their
// own.
package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lacehq/lace/pkg/approval"
	"github.com/lacehq/lace/pkg/budget"
	"github.com/lacehq/lace/pkg/compact"
	"github.com/lacehq/lace/pkg/llm"
	"github.com/lacehq/lace/pkg/logger"
	"github.com/lacehq/lace/pkg/threads"
	"github.com/lacehq/lace/pkg/tools"
	llmtypes "github.com/lacehq/lace/pkg/types/llm"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

var (
	// ErrBusy is returned by SendMessage while a turn is in flight.
	ErrBusy = errors.New("agent busy: a turn is already in flight")
	// ErrIterationLimit is returned when a turn exceeds MaxToolIterations.
	ErrIterationLimit = errors.New("tool iteration limit exceeded")
)

const (
	// DefaultMaxToolIterations bounds provider rounds per turn.
	DefaultMaxToolIterations = 10
	// DefaultTurnTimeout bounds one whole turn.
	DefaultTurnTimeout = 300 * time.Second
	// DefaultCompactTimeout bounds the end-of-turn summarization call.
	DefaultCompactTimeout = 120 * time.Second
)

// Config parameterizes one agent.
type Config struct {
	// Model passed to the provider; empty uses the provider default.
	Model string
	// WeakModel is used for delegate children and compaction summaries.
	WeakModel string
	// SystemPrompt is appended as a system_prompt event on the first turn of
	// a thread that has none.
	SystemPrompt string
	// Tools restricts the agent to a subset of registered tools; empty means
	// all of them.
	Tools []string
	// WorkingDir anchors relative paths for file tools.
	WorkingDir string
	// MaxToolIterations bounds provider rounds per turn; zero means default.
	MaxToolIterations int
	// TurnTimeout bounds one turn end to end; zero means default.
	TurnTimeout time.Duration
	// CompactTimeout bounds the summarization call of automatic compaction;
	// zero means default.
	CompactTimeout time.Duration
	// CarryTail is the number of user turns carried verbatim on compaction.
	CarryTail int
	// ContextWarnPct and ContextCompactPct override the budget thresholds.
	ContextWarnPct    float64
	ContextCompactPct float64
}

// Dependencies are the shared components an agent runs on. Delegate children
// reuse the parent's dependencies as-is.
type Dependencies struct {
	Manager  *threads.Manager
	Provider llmtypes.Provider
	Registry *tools.Registry
	Executor *tools.Executor
	Gate     *approval.Gate
	// Budget may be nil; a tracker sized to the provider context window is
	// created.
	Budget *budget.Tracker
	// Compactor may be nil to disable automatic compaction.
	Compactor *compact.Compactor
}

// Agent is the per-thread turn driver. All exported methods are safe for
// concurrent use; SendMessage rejects overlap with ErrBusy instead of
// queueing.
type Agent struct {
	deps Dependencies
	cfg  Config

	mu         sync.Mutex
	threadID   string
	state      State
	cancelTurn context.CancelFunc

	subsMu sync.Mutex
	subs   []chan Event
}

// New creates an agent bound to threadID.
func New(threadID string, deps Dependencies, cfg Config) *Agent {
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.CompactTimeout <= 0 {
		cfg.CompactTimeout = DefaultCompactTimeout
	}
	if deps.Budget == nil {
		deps.Budget = budget.NewTracker(deps.Provider.ContextWindow(), cfg.ContextWarnPct, cfg.ContextCompactPct)
	}
	a := &Agent{
		deps:     deps,
		cfg:      cfg,
		threadID: threadID,
		state:    StateIdle,
	}
	deps.Budget.SetThresholdCallback(func(threadID string, level budget.Level) {
		logger.L.WithFields(map[string]any{
			"thread_id": threadID,
			"level":     level,
		}).Warn("context budget threshold crossed")
	})
	return a
}

// ThreadID returns the thread the agent currently operates on. Compaction
// moves it to the successor.
func (a *Agent) ThreadID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threadID
}

// State returns the current turn state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Subscribe registers an observer channel. The returned cancel func drops the
// subscription. Slow subscribers lose events rather than stall the turn.
func (a *Agent) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	a.subsMu.Lock()
	a.subs = append(a.subs, ch)
	a.subsMu.Unlock()

	cancel := func() {
		a.subsMu.Lock()
		defer a.subsMu.Unlock()
		for i, sub := range a.subs {
			if sub == ch {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (a *Agent) publish(event Event) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, sub := range a.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

func (a *Agent) transition(state State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
	a.publish(Event{Type: EventStateChange, State: state})
}

// HandleApprovals routes approval tickets to this agent's subscribers as
// approval_requested events. A subscriber must call Ticket.Resolve or the
// call blocks until the turn times out.
func (a *Agent) HandleApprovals() {
	a.deps.Gate.SetResponder(func(ticket *approval.Ticket) {
		a.publish(Event{Type: EventApprovalRequested, Ticket: ticket})
	})
}

// Abort cancels the in-flight turn, if any. The turn drains cooperatively:
// outstanding tool calls are appended as cancelled results before SendMessage
// returns.
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancelTurn
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// roundResult is one assembled provider round.
type roundResult struct {
	text       string
	reasoning  string
	usage      threadtypes.Usage
	stopReason llmtypes.StopReason
	calls      []*pendingCall
}

// pendingCall accumulates a streamed tool call.
type pendingCall struct {
	id    string
	name  string
	input strings.Builder
}

// SendMessage runs one full turn and returns the final assistant text. Empty
// input is accepted; the model is simply asked to continue. A second call
// while a turn is in flight fails fast with ErrBusy.
func (a *Agent) SendMessage(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return "", ErrBusy
	}
	threadID := a.threadID
	turnCtx, cancel := context.WithTimeout(ctx, a.cfg.TurnTimeout)
	a.cancelTurn = cancel
	a.state = StateThinking
	a.mu.Unlock()
	a.publish(Event{Type: EventStateChange, State: StateThinking})

	defer func() {
		cancel()
		a.mu.Lock()
		a.cancelTurn = nil
		a.state = StateIdle
		a.mu.Unlock()
		a.publish(Event{Type: EventStateChange, State: StateIdle})
	}()

	turnID := uuid.NewString()
	defer a.deps.Gate.EndTurn(turnID)

	// Result persistence must survive turn cancellation: a cancelled call
	// still gets its terminal tool_result appended.
	appendCtx := context.WithoutCancel(ctx)

	if err := a.ensureSystemPrompt(turnCtx, threadID); err != nil {
		return "", a.failTurn(err)
	}
	if _, err := a.deps.Manager.AppendEvent(turnCtx, threadID, threadtypes.EventUserMessage, threadtypes.Payload{
		UserMessage: &threadtypes.UserMessagePayload{Text: text},
	}); err != nil {
		return "", a.failTurn(errors.Wrap(err, "failed to append user message"))
	}

	execCtx := tooltypes.ExecContext{
		ThreadID:   threadID,
		TurnID:     turnID,
		WorkingDir: a.cfg.WorkingDir,
		Delegator:  a,
	}

	for iteration := 0; ; iteration++ {
		if iteration >= a.cfg.MaxToolIterations {
			return "", a.failTurn(errors.Wrapf(ErrIterationLimit, "after %d iterations", iteration))
		}

		round, err := a.runProviderRound(turnCtx, threadID)
		if err != nil && turnCtx.Err() == nil && llm.IsRetryableError(err) {
			// A round persists nothing until it completes, so a transient
			// mid-stream failure can be re-run once without duplicating events.
			logger.G(turnCtx).WithError(err).Warn("provider round failed mid-stream, retrying once")
			round, err = a.runProviderRound(turnCtx, threadID)
		}
		if err != nil {
			if turnCtx.Err() != nil {
				a.transition(StateCancelled)
				return "", errors.Wrap(turnCtx.Err(), "turn cancelled")
			}
			return "", a.failTurn(err)
		}

		if _, err := a.deps.Manager.AppendEvent(appendCtx, threadID, threadtypes.EventAgentMessage, threadtypes.Payload{
			AgentMessage: &threadtypes.AgentMessagePayload{
				Text:      round.text,
				Reasoning: round.reasoning,
				Usage:     round.usage,
			},
		}); err != nil {
			return "", a.failTurn(errors.Wrap(err, "failed to append agent message"))
		}
		a.deps.Budget.Record(threadID, round.usage)

		if len(round.calls) == 0 {
			a.transition(StateComplete)
			a.publish(Event{Type: EventResponseComplete, Text: round.text})
			a.maybeCompact(appendCtx)
			return round.text, nil
		}

		a.transition(StateToolExecution)
		if err := a.executeCalls(turnCtx, appendCtx, threadID, execCtx, round.calls); err != nil {
			return "", a.failTurn(err)
		}
		if turnCtx.Err() != nil {
			a.transition(StateCancelled)
			return "", errors.Wrap(turnCtx.Err(), "turn cancelled")
		}
		a.transition(StateThinking)
	}
}

func (a *Agent) failTurn(err error) error {
	a.transition(StateErrored)
	a.publish(Event{Type: EventTurnError, Err: err})
	logger.L.WithError(err).Error("turn failed")
	return err
}

// ensureSystemPrompt appends the configured persona when the thread has none
// yet, or when the newest stored persona differs from the configured one (a
// resumed thread under a changed configuration). Earlier personas stay in the
// log; message reconstruction uses the newest.
func (a *Agent) ensureSystemPrompt(ctx context.Context, threadID string) error {
	if a.cfg.SystemPrompt == "" {
		return nil
	}
	events, err := a.deps.Manager.GetOrLoad(ctx, threadID)
	if err != nil {
		return err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == threadtypes.EventSystemPrompt {
			if events[i].Payload.SystemPrompt.Text == a.cfg.SystemPrompt {
				return nil
			}
			break
		}
	}
	_, err = a.deps.Manager.AppendEvent(ctx, threadID, threadtypes.EventSystemPrompt, threadtypes.Payload{
		SystemPrompt: &threadtypes.SystemPromptPayload{Text: a.cfg.SystemPrompt},
	})
	return err
}

// runProviderRound reconstructs the conversation and performs one provider
// round, assembling the streamed deltas into a roundResult. Nothing is
// persisted here; a cancelled or failed stream leaves no trace in the log.
func (a *Agent) runProviderRound(ctx context.Context, threadID string) (*roundResult, error) {
	events, err := a.deps.Manager.GetOrLoad(ctx, threadID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load thread events")
	}
	system, messages := threads.BuildMessages(events)

	descriptors, err := a.deps.Registry.Descriptors(a.cfg.Tools)
	if err != nil {
		return nil, err
	}
	req := llmtypes.Request{
		System:   system,
		Messages: messages,
		Tools:    descriptors,
		Model:    a.cfg.Model,
	}

	if !a.deps.Provider.SupportsStreaming() {
		return a.runBlockingRound(ctx, req)
	}

	stream, err := a.deps.Provider.CreateStreamingResponse(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start provider stream")
	}

	var (
		round     roundResult
		text      strings.Builder
		reasoning strings.Builder
		order     []string
		pending   = make(map[string]*pendingCall)
		streaming bool
	)
	for event := range stream {
		switch event.Type {
		case llmtypes.StreamTextDelta:
			if !streaming {
				streaming = true
				a.transition(StateStreaming)
			}
			text.WriteString(event.Text)
			a.publish(Event{Type: EventTextDelta, Text: event.Text})

		case llmtypes.StreamThinkingDelta:
			if !streaming {
				streaming = true
				a.transition(StateStreaming)
			}
			reasoning.WriteString(event.Text)
			a.publish(Event{Type: EventThinkingDelta, Text: event.Text})

		case llmtypes.StreamToolCallDelta:
			delta := event.ToolCall
			call, ok := pending[delta.CallID]
			if !ok {
				call = &pendingCall{id: delta.CallID, name: delta.Name}
				pending[delta.CallID] = call
				order = append(order, delta.CallID)
			}
			if call.name == "" {
				call.name = delta.Name
			}
			call.input.WriteString(delta.InputFragment)

		case llmtypes.StreamUsageUpdate:
			round.usage = *event.Usage

		case llmtypes.StreamFinished:
			round.stopReason = event.StopReason
			if event.Err != nil {
				return nil, event.Err
			}
		}
	}
	if ctx.Err() != nil || round.stopReason == llmtypes.StopCancelled {
		// Partial assistant output from an aborted stream is discarded, not
		// persisted.
		return nil, errors.Wrap(context.Canceled, "stream cancelled")
	}

	round.text = text.String()
	round.reasoning = reasoning.String()
	for _, id := range order {
		round.calls = append(round.calls, pending[id])
	}
	return &round, nil
}

func (a *Agent) runBlockingRound(ctx context.Context, req llmtypes.Request) (*roundResult, error) {
	resp, err := a.deps.Provider.CreateResponse(ctx, req)
	if err != nil {
		return nil, err
	}
	round := &roundResult{
		stopReason: resp.StopReason,
		usage: threadtypes.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Message.Blocks {
		switch block.Type {
		case llmtypes.BlockText:
			round.text += block.Text
		case llmtypes.BlockThinking:
			round.reasoning += block.Text
		case llmtypes.BlockToolUse:
			call := &pendingCall{id: block.ToolUse.ID, name: block.ToolUse.Name}
			call.input.WriteString(string(block.ToolUse.Input))
			round.calls = append(round.calls, call)
		}
	}
	return round, nil
}

// executeCalls persists the round's tool_call events in emission order, then
// dispatches them and appends each result as it completes. A call whose
// accumulated input is not valid JSON gets a synthesized bad_input result so
// the model can self-correct on the next round.
func (a *Agent) executeCalls(turnCtx, appendCtx context.Context, threadID string, execCtx tooltypes.ExecContext, calls []*pendingCall) error {
	var (
		execCalls   []tools.Call
		synthesized []threadtypes.ToolResultPayload
	)
	for _, call := range calls {
		input := call.input.String()
		if input == "" {
			input = "{}"
		}

		raw := json.RawMessage(input)
		if !json.Valid(raw) {
			// Keep the log valid JSON: store the malformed input as a string
			// value.
			raw, _ = json.Marshal(input)
			synthesized = append(synthesized, threadtypes.ToolResultPayload{
				CallID:    call.id,
				Outcome:   threadtypes.OutcomeError,
				ErrorKind: threadtypes.ErrorKindBadInput,
				Content:   []threadtypes.ContentBlock{threadtypes.TextBlock("tool input is not valid JSON")},
			})
		} else {
			execCalls = append(execCalls, tools.Call{ID: call.id, Name: call.name, Input: input})
		}

		if _, err := a.deps.Manager.AppendEvent(appendCtx, threadID, threadtypes.EventToolCall, threadtypes.Payload{
			ToolCall: &threadtypes.ToolCallPayload{
				CallID:   call.id,
				ToolName: call.name,
				Input:    raw,
			},
		}); err != nil {
			return errors.Wrap(err, "failed to append tool call")
		}
		a.publish(Event{Type: EventToolCallStarted, CallID: call.id, ToolName: call.name})
	}

	appendResult := func(payload threadtypes.ToolResultPayload) error {
		if _, err := a.deps.Manager.AppendEvent(appendCtx, threadID, threadtypes.EventToolResult, threadtypes.Payload{
			ToolResult: &payload,
		}); err != nil {
			return errors.Wrap(err, "failed to append tool result")
		}
		a.publish(Event{
			Type:    EventToolCallFinished,
			CallID:  payload.CallID,
			Outcome: payload.Outcome,
		})
		return nil
	}

	for _, payload := range synthesized {
		if err := appendResult(payload); err != nil {
			return err
		}
	}
	for payload := range a.deps.Executor.ExecuteAll(turnCtx, execCalls, execCtx) {
		if err := appendResult(payload); err != nil {
			return err
		}
	}
	return nil
}

// Delegate implements the delegator contract used by the delegate tool: a
// child agent on a child thread, sharing every dependency, optionally with
// the weak model and a reduced tool set. The child thread stays queryable by
// its canonical id after the summary comes back.
func (a *Agent) Delegate(ctx context.Context, task string, constraints tooltypes.DelegateConstraints) (string, error) {
	childThreadID, err := a.deps.Manager.CreateChild(ctx, a.ThreadID())
	if err != nil {
		return "", errors.Wrap(err, "failed to create delegate thread")
	}

	cfg := a.cfg
	cfg.Tools = constraints.Tools
	if len(cfg.Tools) == 0 {
		cfg.Tools = a.delegateToolSet()
	}
	if constraints.UseWeakModel && a.cfg.WeakModel != "" {
		cfg.Model = a.cfg.WeakModel
	}

	child := New(childThreadID, a.deps, cfg)
	summary, err := child.SendMessage(ctx, task)
	if err != nil {
		return "", errors.Wrap(err, "delegate turn failed")
	}
	return summary, nil
}

// delegateToolSet is the parent's tool set minus delegate itself, so children
// cannot recurse indefinitely.
func (a *Agent) delegateToolSet() []string {
	names := a.cfg.Tools
	if len(names) == 0 {
		names = a.deps.Registry.Names()
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "delegate" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// maybeCompact runs at the end of a completed turn. When the budget says the
// context is nearly full, the thread is compacted and the agent moves to the
// successor; the next send operates there.
func (a *Agent) maybeCompact(ctx context.Context) {
	if a.deps.Compactor == nil {
		return
	}
	threadID := a.ThreadID()
	if a.deps.Budget.Level(threadID) != budget.LevelCompact {
		return
	}

	// The turn is already complete; a hung summarizer must not hold
	// SendMessage open past the timeout.
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CompactTimeout)
	defer cancel()

	successorID, err := a.deps.Compactor.Compact(ctx, threadID, a.cfg.CarryTail)
	if err != nil {
		logger.L.WithError(err).WithField("thread_id", threadID).Warn("compaction failed, continuing on source thread")
		return
	}
	if successorID == threadID {
		return
	}
	a.deps.Budget.Reset(threadID)
	a.mu.Lock()
	a.threadID = successorID
	a.mu.Unlock()
}
