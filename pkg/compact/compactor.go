// Package compact folds a long thread onto a successor: the head of the log
// is summarized by a cheap model, the tail is carried verbatim, and the
// successor shares the source's canonical id so external references survive.
package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/lacehq/lace/pkg/logger"
	"github.com/lacehq/lace/pkg/threads"
	llmtypes "github.com/lacehq/lace/pkg/types/llm"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

const (
	// DefaultCarryTail is the number of trailing user turns carried verbatim
	// onto the successor thread.
	DefaultCarryTail = 2

	summarySystemPrompt = `You summarize coding assistant conversations. Produce a dense,
factual summary that preserves: the user's goals, decisions made, files and
artifacts touched, tool interactions that still matter, and any unresolved
questions. Write plain prose; do not address the user.`

	summaryMaxTokens = 2048
)

// Compactor produces compaction successors. The provider is typically
// configured with the weak model; summaries do not need the primary one.
type Compactor struct {
	manager  *threads.Manager
	provider llmtypes.Provider
	model    string
}

// NewCompactor creates a compactor. model may be empty to use the provider
// default.
func NewCompactor(manager *threads.Manager, provider llmtypes.Provider, model string) *Compactor {
	return &Compactor{manager: manager, provider: provider, model: model}
}

// Compact summarizes threadID's history and returns the id of the successor
// thread. The last carryTail user turns move over verbatim, which keeps every
// carried tool result next to its call; the cut always falls on a user
// message boundary. The source thread is retained.
//
// When the log is too short to leave anything worth summarizing, Compact is a
// no-op and returns the source id.
func (c *Compactor) Compact(ctx context.Context, threadID string, carryTail int) (string, error) {
	if carryTail < 0 {
		carryTail = DefaultCarryTail
	}

	events, err := c.manager.GetOrLoad(ctx, threadID)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return threadID, nil
	}

	cut := carryBoundary(events, carryTail)
	if cut == 0 {
		logger.G(ctx).WithField("thread_id", threadID).Debug("nothing to compact")
		return threadID, nil
	}
	head, tail := events[:cut], events[cut:]

	summary, err := c.summarize(ctx, head)
	if err != nil {
		return "", errors.Wrap(err, "summarization failed")
	}

	successorID, err := c.manager.CreateSuccessor(ctx, threadID)
	if err != nil {
		return "", err
	}

	// The successor opens with the active persona, then the marker, then the
	// carried tail. Replaying in this order reproduces the message shape the
	// provider saw before compaction.
	if prompt := newestSystemPrompt(events); prompt != nil {
		if _, err := c.manager.AppendEvent(ctx, successorID, threadtypes.EventSystemPrompt, threadtypes.Payload{SystemPrompt: prompt}); err != nil {
			return "", err
		}
	}

	marker := &threadtypes.CompactionMarkerPayload{
		SourceThreadID: threadID,
		Summary:        summary,
		FirstEventID:   head[0].ID,
		LastEventID:    head[len(head)-1].ID,
	}
	if _, err := c.manager.AppendEvent(ctx, successorID, threadtypes.EventCompactionMarker, threadtypes.Payload{CompactionMarker: marker}); err != nil {
		return "", err
	}

	for _, event := range tail {
		if event.Kind == threadtypes.EventSystemPrompt {
			continue
		}
		if _, err := c.manager.AppendEvent(ctx, successorID, event.Kind, event.Payload); err != nil {
			return "", err
		}
	}

	logger.G(ctx).WithFields(map[string]any{
		"source_id":    threadID,
		"successor_id": successorID,
		"summarized":   len(head),
		"carried":      len(tail),
	}).Info("compacted thread")
	return successorID, nil
}

// carryBoundary returns the index where the carried tail begins: the
// carryTail-th user message from the end. Zero means the whole log would be
// carried and there is nothing to summarize.
func carryBoundary(events []threadtypes.ThreadEvent, carryTail int) int {
	if carryTail == 0 {
		return len(events)
	}
	seen := 0
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == threadtypes.EventUserMessage {
			seen++
			if seen == carryTail {
				return i
			}
		}
	}
	return 0
}

func newestSystemPrompt(events []threadtypes.ThreadEvent) *threadtypes.SystemPromptPayload {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == threadtypes.EventSystemPrompt {
			return events[i].Payload.SystemPrompt
		}
	}
	return nil
}

func (c *Compactor) summarize(ctx context.Context, events []threadtypes.ThreadEvent) (string, error) {
	transcript := renderTranscript(events)
	resp, err := c.provider.CreateResponse(ctx, llmtypes.Request{
		System: summarySystemPrompt,
		Messages: []llmtypes.Message{{
			Role:   llmtypes.RoleUser,
			Blocks: []llmtypes.Block{llmtypes.TextBlock(transcript)},
		}},
		Model:     c.model,
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	summary := resp.Message.Text()
	if summary == "" {
		return "", errors.New("empty summary from provider")
	}
	return summary, nil
}

// renderTranscript flattens events into a readable transcript for the
// summarizer. Tool inputs are truncated; the summary does not need them
// verbatim.
func renderTranscript(events []threadtypes.ThreadEvent) string {
	var b strings.Builder
	for _, event := range events {
		switch event.Kind {
		case threadtypes.EventUserMessage:
			fmt.Fprintf(&b, "User: %s\n", event.Payload.UserMessage.Text)
		case threadtypes.EventAgentMessage:
			fmt.Fprintf(&b, "Assistant: %s\n", event.Payload.AgentMessage.Text)
		case threadtypes.EventToolCall:
			call := event.Payload.ToolCall
			fmt.Fprintf(&b, "Tool call %s(%s): %s\n", call.ToolName, call.CallID, truncate(string(call.Input), 200))
		case threadtypes.EventToolResult:
			result := event.Payload.ToolResult
			var text string
			for _, block := range result.Content {
				if block.Type == "text" {
					text += block.Text
				}
			}
			fmt.Fprintf(&b, "Tool result %s (%s): %s\n", result.CallID, result.Outcome, truncate(text, 200))
		case threadtypes.EventCompactionMarker:
			fmt.Fprintf(&b, "Earlier summary: %s\n", event.Payload.CompactionMarker.Summary)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
