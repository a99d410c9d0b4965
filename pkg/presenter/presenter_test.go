package presenter

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacehq/lace/pkg/types/threads"
)

func TestNewWithOptions(t *testing.T) {
	var output, errorOutput bytes.Buffer
	presenter := NewWithOptions(&output, &errorOutput, ColorNever)

	assert.Equal(t, &output, presenter.output)
	assert.Equal(t, &errorOutput, presenter.errorOutput)
	assert.Equal(t, ColorNever, presenter.colorMode)
	assert.False(t, presenter.quiet)
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name      string
		noColor   string
		laceColor string
		expected  ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"LACE_COLOR always", "", "always", ColorAlways},
		{"LACE_COLOR force", "", "force", ColorAlways},
		{"LACE_COLOR never", "", "never", ColorNever},
		{"LACE_COLOR off", "", "off", ColorNever},
		{"LACE_COLOR auto", "", "auto", ColorAuto},
		{"default", "", "", ColorAuto},
		{"invalid value", "", "rainbow", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("NO_COLOR")
			os.Unsetenv("LACE_COLOR")

			if tt.noColor != "" {
				os.Setenv("NO_COLOR", tt.noColor)
			}
			if tt.laceColor != "" {
				os.Setenv("LACE_COLOR", tt.laceColor)
			}

			assert.Equal(t, tt.expected, detectColorMode())

			os.Unsetenv("NO_COLOR")
			os.Unsetenv("LACE_COLOR")
		})
	}
}

func TestError(t *testing.T) {
	var errorOutput bytes.Buffer
	presenter := NewWithOptions(nil, &errorOutput, ColorNever)

	err := errors.New("test error")
	presenter.Error(err, "test context")

	output := errorOutput.String()
	assert.Contains(t, output, "[ERROR]")
	assert.Contains(t, output, "test context")
	assert.Contains(t, output, "test error")

	errorOutput.Reset()
	presenter.Error(err, "")
	assert.NotContains(t, errorOutput.String(), "test context")

	errorOutput.Reset()
	presenter.Error(nil, "context")
	assert.Empty(t, errorOutput.String())
}

func TestErrorPrintsInQuietMode(t *testing.T) {
	var errorOutput bytes.Buffer
	presenter := NewWithOptions(nil, &errorOutput, ColorNever)
	presenter.SetQuiet(true)

	presenter.Error(errors.New("still shown"), "")
	assert.Contains(t, errorOutput.String(), "still shown")
}

func TestSuccess(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Success("thread deleted")

	result := output.String()
	assert.Contains(t, result, "✓")
	assert.Contains(t, result, "thread deleted")
}

func TestWarning(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Warning("context nearly full")

	result := output.String()
	assert.Contains(t, result, "⚠")
	assert.Contains(t, result, "context nearly full")
}

func TestInfo(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Info("resuming thread")

	result := output.String()
	assert.Contains(t, result, "resuming thread")
	assert.NotContains(t, result, "[INFO]")
}

func TestQuietModeSuppressesOutput(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)
	presenter.SetQuiet(true)

	presenter.Success("hidden")
	presenter.Warning("hidden")
	presenter.Info("hidden")
	presenter.Section("hidden")
	presenter.Separator()
	presenter.Stats(&UsageStats{InputTokens: 1})

	assert.Empty(t, output.String())
}

func TestSection(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Section("Threads")

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Threads", lines[0])
	assert.Equal(t, strings.Repeat("-", len("Threads")), lines[1])
}

func TestStats(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Stats(&UsageStats{
		InputTokens:   100,
		OutputTokens:  50,
		ContextUsed:   150,
		ContextWindow: 1000,
	})

	result := output.String()
	assert.Contains(t, result, "Input tokens: 100")
	assert.Contains(t, result, "Output tokens: 50")
	assert.Contains(t, result, "Total: 150")
	assert.Contains(t, result, "Window: 1000")
	assert.Contains(t, result, "15.0%")
}

func TestStatsNil(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Stats(nil)
	assert.Empty(t, output.String())
}

func TestStatsNoWindow(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Stats(&UsageStats{InputTokens: 10, OutputTokens: 5})
	assert.NotContains(t, output.String(), "[Context]")
}

func TestSeparator(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Separator()
	assert.Contains(t, output.String(), strings.Repeat("-", 60))
}

func TestConvertUsage(t *testing.T) {
	stats := ConvertUsage(threads.Usage{InputTokens: 100, OutputTokens: 50}, 150, 1000)
	require.NotNil(t, stats)
	assert.Equal(t, 100, stats.InputTokens)
	assert.Equal(t, 50, stats.OutputTokens)
	assert.Equal(t, 150, stats.ContextUsed)
	assert.Equal(t, 1000, stats.ContextWindow)
}

func TestGlobalFunctions(t *testing.T) {
	originalPresenter := defaultPresenter
	var output, errorOutput bytes.Buffer
	defaultPresenter = NewWithOptions(&output, &errorOutput, ColorNever)
	defer func() { defaultPresenter = originalPresenter }()

	Error(errors.New("test error"), "error context")
	assert.Contains(t, errorOutput.String(), "error context")

	output.Reset()
	Success("success message")
	assert.Contains(t, output.String(), "success message")

	output.Reset()
	Warning("warning message")
	assert.Contains(t, output.String(), "warning message")

	output.Reset()
	Info("info message")
	assert.Contains(t, output.String(), "info message")

	SetQuiet(true)
	assert.True(t, IsQuiet())
	output.Reset()
	Info("should not appear")
	assert.Empty(t, output.String())
	SetQuiet(false)
}
