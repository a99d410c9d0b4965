// Package openai adapts the OpenAI chat completion API to the generic
// provider contract, including reasoning-capable models that emit
// ReasoningContent deltas.
package openai

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/lacehq/lace/pkg/logger"
	llmtypes "github.com/lacehq/lace/pkg/types/llm"
)

const (
	// DefaultModel is used when neither config nor request name one.
	DefaultModel = "gpt-4o"
	// DefaultMaxTokens bounds output when the config leaves it zero.
	DefaultMaxTokens = 8192
	// contextWindow is the context limit of the supported models.
	contextWindow = 128_000
)

// Provider implements the provider contract on top of go-openai.
type Provider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewProvider builds an OpenAI adapter. The credential comes from the config
// or falls back to OPENAI_API_KEY.
func NewProvider(cfg llmtypes.Config) (*Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
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
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (p *Provider) Name() string            { return "openai" }
func (p *Provider) ContextWindow() int      { return contextWindow }
func (p *Provider) MaxOutput() int          { return p.maxTokens }
func (p *Provider) SupportsStreaming() bool { return true }

func (p *Provider) buildParams(req llmtypes.Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	params := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            convertMessages(req.System, req.Messages),
		MaxCompletionTokens: maxTokens,
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

// CreateResponse performs one non-streaming round.
func (p *Provider) CreateResponse(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildParams(req))
	if err != nil {
		return llmtypes.Response{}, errors.Wrap(err, "openai chat completion failed")
	}
	return convertResponse(resp), nil
}

// CreateStreamingResponse starts a streaming round. Tool call fragments are
// re-keyed from the wire's positional index onto the call ID so the consumer
// never sees provider indices.
func (p *Provider) CreateStreamingResponse(ctx context.Context, req llmtypes.Request) (<-chan llmtypes.StreamEvent, error) {
	params := p.buildParams(req)
	params.Stream = true
	params.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "openai stream setup failed")
	}

	events := make(chan llmtypes.StreamEvent, 32)
	go p.processStream(ctx, stream, events)
	return events, nil
}

// pendingCall carries the identity of a tool call across argument fragments,
// which arrive with only a positional index after the first delta.
type pendingCall struct {
	id   string
	name string
}

func (p *Provider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- llmtypes.StreamEvent) {
	defer close(events)
	defer stream.Close()

	var (
		usage        llmtypes.Usage
		finishReason openai.FinishReason
		calls        []pendingCall
	)

	send := func(ev llmtypes.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		streamResponse, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				send(llmtypes.FinishedEvent(llmtypes.StopCancelled, ctx.Err()))
				return
			}
			send(llmtypes.FinishedEvent(llmtypes.StopError, errors.Wrap(err, "openai stream failed")))
			return
		}

		// Usage arrives in a trailing chunk when IncludeUsage is set.
		if streamResponse.Usage != nil {
			usage.InputTokens = streamResponse.Usage.PromptTokens
			usage.OutputTokens = streamResponse.Usage.CompletionTokens
			if !send(llmtypes.UsageUpdateEvent(usage.InputTokens, usage.OutputTokens)) {
				return
			}
		}

		for _, choice := range streamResponse.Choices {
			delta := choice.Delta

			if delta.Content != "" {
				if !send(llmtypes.TextDeltaEvent(delta.Content)) {
					return
				}
			}
			if delta.ReasoningContent != "" {
				if !send(llmtypes.ThinkingDeltaEvent(delta.ReasoningContent)) {
					return
				}
			}

			for _, tc := range delta.ToolCalls {
				if tc.Index == nil {
					logger.G(ctx).WithField("tool_call_id", tc.ID).Warn("tool call delta without index, skipping")
					continue
				}
				idx := *tc.Index
				for len(calls) <= idx {
					calls = append(calls, pendingCall{})
				}
				if tc.ID != "" {
					calls[idx].id = tc.ID
				}
				if tc.Function.Name != "" {
					calls[idx].name = tc.Function.Name
				}
				if !send(llmtypes.ToolCallDeltaEvent(calls[idx].id, calls[idx].name, tc.Function.Arguments)) {
					return
				}
			}

			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}
	}

	if ctx.Err() != nil {
		send(llmtypes.FinishedEvent(llmtypes.StopCancelled, ctx.Err()))
		return
	}
	send(llmtypes.FinishedEvent(convertFinishReason(finishReason), nil))
}
