// Package llm selects and wraps provider adapters. The factory is the only
// place provider names are branched on; everything downstream speaks the
// generic conversation types.
package llm

import (
	"github.com/pkg/errors"

	"github.com/lacehq/lace/pkg/llm/anthropic"
	"github.com/lacehq/lace/pkg/llm/openai"
	llmtypes "github.com/lacehq/lace/pkg/types/llm"
)

// NewProvider builds the adapter selected by cfg.Provider. The returned
// provider retries transient transport failures once with backoff before
// surfacing a finished(error) event.
func NewProvider(cfg llmtypes.Config) (llmtypes.Provider, error) {
	var (
		provider llmtypes.Provider
		err      error
	)
	switch cfg.Provider {
	case "anthropic", "":
		provider, err = anthropic.NewProvider(cfg)
	case "openai":
		provider, err = openai.NewProvider(cfg)
	default:
		return nil, errors.Errorf("unknown provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return withRetry(provider), nil
}
