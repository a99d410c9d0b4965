package llm

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/lacehq/lace/pkg/logger"
	llmtypes "github.com/lacehq/lace/pkg/types/llm"
)

// Transport failures get exactly one retry with exponential backoff; wire
// and semantic errors never retry.
const (
	retryAttempts     = 2
	retryInitialDelay = 500 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
)

// retryingProvider decorates an adapter with transport retry. Streaming
// retries only the stream setup; an error mid-stream surfaces as a
// finished(error) event for the agent to classify.
type retryingProvider struct {
	llmtypes.Provider
}

func withRetry(p llmtypes.Provider) llmtypes.Provider {
	return &retryingProvider{Provider: p}
}

// IsRetryableError reports whether an error looks like a transient
// transport failure: timeouts, connection resets, and 429/5xx responses.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"timeout",
		"temporarily unavailable",
		"429",
		"500",
		"502",
		"503",
		"504",
		"overloaded",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func (p *retryingProvider) CreateResponse(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
	var response llmtypes.Response
	err := retry.Do(
		func() error {
			var apiErr error
			response, apiErr = p.Provider.CreateResponse(ctx, req)
			return apiErr
		},
		retry.RetryIf(IsRetryableError),
		retry.Attempts(retryAttempts),
		retry.Delay(retryInitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying provider call")
		}),
	)
	return response, err
}

func (p *retryingProvider) CreateStreamingResponse(ctx context.Context, req llmtypes.Request) (<-chan llmtypes.StreamEvent, error) {
	var stream <-chan llmtypes.StreamEvent
	err := retry.Do(
		func() error {
			var apiErr error
			stream, apiErr = p.Provider.CreateStreamingResponse(ctx, req)
			return apiErr
		},
		retry.RetryIf(IsRetryableError),
		retry.Attempts(retryAttempts),
		retry.Delay(retryInitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying provider stream setup")
		}),
	)
	return stream, err
}
