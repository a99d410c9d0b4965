// Package anthropic adapts the Anthropic Messages API to the generic provider
// contract. Conversion between the generic conversation and the wire format
// lives in convert.go; no SDK type escapes this package.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/pkg/errors"

	"github.com/lacehq/lace/pkg/logger"
	llmtypes "github.com/lacehq/lace/pkg/types/llm"
)

const (
	// DefaultModel is used when neither config nor request name one.
	DefaultModel = "claude-sonnet-4-5"
	// DefaultMaxTokens bounds output when the config leaves it zero.
	DefaultMaxTokens = 8192
	// contextWindow is the context limit of the supported Claude models.
	contextWindow = 200_000
)

// Provider implements the provider contract on top of the official SDK.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewProvider builds an Anthropic adapter. The SDK reads ANTHROPIC_API_KEY
// from the environment unless the config overrides it.
func NewProvider(cfg llmtypes.Config) (*Provider, error) {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Provider{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (p *Provider) Name() string            { return "anthropic" }
func (p *Provider) ContextWindow() int      { return contextWindow }
func (p *Provider) MaxOutput() int          { return p.maxTokens }
func (p *Provider) SupportsStreaming() bool { return true }

func (p *Provider) buildParams(req llmtypes.Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

// CreateResponse performs one non-streaming round.
func (p *Provider) CreateResponse(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return llmtypes.Response{}, errors.Wrap(err, "anthropic message request failed")
	}
	return convertResponse(msg), nil
}

// CreateStreamingResponse starts a streaming round and normalizes the SSE
// events onto the generic stream shape. The channel closes after the
// Finished event; transport errors surface as Finished(error).
func (p *Provider) CreateStreamingResponse(ctx context.Context, req llmtypes.Request) (<-chan llmtypes.StreamEvent, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))
	events := make(chan llmtypes.StreamEvent, 32)
	go p.processStream(ctx, stream, events)
	return events, nil
}

// pendingCall tracks an open tool_use content block by its stream index so
// input_json_delta fragments can be attributed to the right call.
type pendingCall struct {
	id   string
	name string
}

func (p *Provider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- llmtypes.StreamEvent) {
	defer close(events)
	defer stream.Close()

	var (
		usage      llmtypes.Usage
		stopReason = llmtypes.StopEnd
		calls      = make(map[int64]pendingCall)
	)

	send := func(ev llmtypes.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			usage.InputTokens = int(event.AsMessageStart().Message.Usage.InputTokens)
			if !send(llmtypes.UsageUpdateEvent(usage.InputTokens, usage.OutputTokens)) {
				return
			}
		case "content_block_start":
			start := event.AsContentBlockStart()
			if start.ContentBlock.Type == "tool_use" {
				toolUse := start.ContentBlock.AsToolUse()
				calls[start.Index] = pendingCall{id: toolUse.ID, name: toolUse.Name}
				if !send(llmtypes.ToolCallDeltaEvent(toolUse.ID, toolUse.Name, "")) {
					return
				}
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch delta.Delta.Type {
			case "text_delta":
				if !send(llmtypes.TextDeltaEvent(delta.Delta.Text)) {
					return
				}
			case "thinking_delta":
				if !send(llmtypes.ThinkingDeltaEvent(delta.Delta.Thinking)) {
					return
				}
			case "input_json_delta":
				call, ok := calls[delta.Index]
				if !ok {
					logger.G(ctx).WithField("index", delta.Index).Warn("input delta for unknown tool call")
					continue
				}
				if !send(llmtypes.ToolCallDeltaEvent(call.id, call.name, delta.Delta.PartialJSON)) {
					return
				}
			}
		case "content_block_stop":
			delete(calls, event.AsContentBlockStop().Index)
		case "message_delta":
			messageDelta := event.AsMessageDelta()
			usage.OutputTokens = int(messageDelta.Usage.OutputTokens)
			if reason := string(messageDelta.Delta.StopReason); reason != "" {
				stopReason = convertStopReason(reason)
			}
			if !send(llmtypes.UsageUpdateEvent(usage.InputTokens, usage.OutputTokens)) {
				return
			}
		case "message_stop":
			// Finished is emitted after the loop drains.
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			send(llmtypes.FinishedEvent(llmtypes.StopCancelled, ctx.Err()))
			return
		}
		send(llmtypes.FinishedEvent(llmtypes.StopError, errors.Wrap(err, "anthropic stream failed")))
		return
	}
	if ctx.Err() != nil {
		send(llmtypes.FinishedEvent(llmtypes.StopCancelled, ctx.Err()))
		return
	}
	send(llmtypes.FinishedEvent(stopReason, nil))
}
