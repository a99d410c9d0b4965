// Package budget tracks token usage per thread against the provider context
// window and reports threshold crossings. The agent consults it only at turn
// boundaries; nothing here interrupts streaming.
package budget

import (
	"sync"

	"github.com/lacehq/lace/pkg/types/threads"
)

// Level classifies how full the context window is.
type Level string

const (
	LevelOK      Level = "ok"
	LevelWarn    Level = "warn"
	LevelCompact Level = "compact"
)

// Default thresholds as fractions of the context window.
const (
	DefaultWarnPct    = 0.80
	DefaultCompactPct = 0.90
)

// Tracker maintains a running token tally per thread. Crossing a threshold
// fires the registered callback once per level per thread; the tally resets
// when the thread is compacted onto a successor.
type Tracker struct {
	mu            sync.Mutex
	contextWindow int
	warnPct       float64
	compactPct    float64

	used     map[string]int
	notified map[string]Level

	// onThreshold is called outside the lock when a thread crosses a level.
	onThreshold func(threadID string, level Level)
}

// NewTracker creates a tracker for the given context window size. Zero
// percentages fall back to the defaults.
func NewTracker(contextWindow int, warnPct, compactPct float64) *Tracker {
	if warnPct <= 0 {
		warnPct = DefaultWarnPct
	}
	if compactPct <= 0 {
		compactPct = DefaultCompactPct
	}
	return &Tracker{
		contextWindow: contextWindow,
		warnPct:       warnPct,
		compactPct:    compactPct,
		used:          make(map[string]int),
		notified:      make(map[string]Level),
	}
}

// SetThresholdCallback registers the threshold-crossed notification.
func (t *Tracker) SetThresholdCallback(fn func(threadID string, level Level)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onThreshold = fn
}

// Record adds the usage of one provider round to the thread's tally. The
// input token count already covers the whole context, so it replaces rather
// than accumulates; output tokens add on top.
func (t *Tracker) Record(threadID string, usage threads.Usage) {
	t.mu.Lock()
	t.used[threadID] = usage.InputTokens + usage.OutputTokens

	level := t.levelLocked(threadID)
	fire := false
	if level != LevelOK && t.notified[threadID] != level {
		t.notified[threadID] = level
		fire = true
	}
	fn := t.onThreshold
	t.mu.Unlock()

	if fire && fn != nil {
		fn(threadID, level)
	}
}

// Used returns the current tally for a thread.
func (t *Tracker) Used(threadID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used[threadID]
}

// Level returns the thread's current budget level.
func (t *Tracker) Level(threadID string) Level {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.levelLocked(threadID)
}

func (t *Tracker) levelLocked(threadID string) Level {
	if t.contextWindow <= 0 {
		return LevelOK
	}
	used := float64(t.used[threadID])
	window := float64(t.contextWindow)
	switch {
	case used >= window*t.compactPct:
		return LevelCompact
	case used >= window*t.warnPct:
		return LevelWarn
	default:
		return LevelOK
	}
}

// Reset clears the tally for a thread, typically after compaction moved the
// conversation to a successor.
func (t *Tracker) Reset(threadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.used, threadID)
	delete(t.notified, threadID)
}
