package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lacehq/lace/pkg/types/threads"
)

func TestLevelThresholds(t *testing.T) {
	tracker := NewTracker(1000, 0, 0)

	tracker.Record("t1", threads.Usage{InputTokens: 100, OutputTokens: 50})
	assert.Equal(t, LevelOK, tracker.Level("t1"))
	assert.Equal(t, 150, tracker.Used("t1"))

	tracker.Record("t1", threads.Usage{InputTokens: 750, OutputTokens: 60})
	assert.Equal(t, LevelWarn, tracker.Level("t1"))

	tracker.Record("t1", threads.Usage{InputTokens: 850, OutputTokens: 100})
	assert.Equal(t, LevelCompact, tracker.Level("t1"))
}

func TestInputTokensReplaceNotAccumulate(t *testing.T) {
	tracker := NewTracker(1000, 0, 0)

	tracker.Record("t1", threads.Usage{InputTokens: 400, OutputTokens: 10})
	tracker.Record("t1", threads.Usage{InputTokens: 450, OutputTokens: 20})

	// The provider reports the whole context as input each round; the tally
	// reflects the latest round, not the sum of all rounds.
	assert.Equal(t, 470, tracker.Used("t1"))
}

func TestThresholdCallbackFiresOncePerLevel(t *testing.T) {
	tracker := NewTracker(1000, 0, 0)

	var fired []Level
	tracker.SetThresholdCallback(func(threadID string, level Level) {
		fired = append(fired, level)
	})

	tracker.Record("t1", threads.Usage{InputTokens: 810})
	tracker.Record("t1", threads.Usage{InputTokens: 820})
	tracker.Record("t1", threads.Usage{InputTokens: 950})
	tracker.Record("t1", threads.Usage{InputTokens: 960})

	assert.Equal(t, []Level{LevelWarn, LevelCompact}, fired)
}

func TestPerThreadIsolation(t *testing.T) {
	tracker := NewTracker(1000, 0, 0)

	tracker.Record("hot", threads.Usage{InputTokens: 950})
	tracker.Record("cold", threads.Usage{InputTokens: 10})

	assert.Equal(t, LevelCompact, tracker.Level("hot"))
	assert.Equal(t, LevelOK, tracker.Level("cold"))
}

func TestResetClearsTally(t *testing.T) {
	tracker := NewTracker(1000, 0, 0)
	tracker.Record("t1", threads.Usage{InputTokens: 950})
	assert.Equal(t, LevelCompact, tracker.Level("t1"))

	tracker.Reset("t1")
	assert.Equal(t, LevelOK, tracker.Level("t1"))
	assert.Zero(t, tracker.Used("t1"))
}

func TestZeroContextWindowNeverTrips(t *testing.T) {
	tracker := NewTracker(0, 0, 0)
	tracker.Record("t1", threads.Usage{InputTokens: 1 << 30})
	assert.Equal(t, LevelOK, tracker.Level("t1"))
}

func TestCustomThresholds(t *testing.T) {
	tracker := NewTracker(100, 0.5, 0.75)

	tracker.Record("t1", threads.Usage{InputTokens: 60})
	assert.Equal(t, LevelWarn, tracker.Level("t1"))
	tracker.Record("t1", threads.Usage{InputTokens: 80})
	assert.Equal(t, LevelCompact, tracker.Level("t1"))
}
