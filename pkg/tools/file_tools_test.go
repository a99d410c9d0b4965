package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacehq/lace/pkg/types/threads"
	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

func dirCtx(dir string) tooltypes.ExecContext {
	return tooltypes.ExecContext{ThreadID: "t1", TurnID: "turn-1", WorkingDir: dir}
}

func TestReadFileNumbersLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("first\nsecond\nthird\n"), 0644))

	tool := &ReadFileTool{}
	result := tool.Execute(context.Background(), dirCtx(dir), `{"path":"hello.txt"}`)
	require.Equal(t, threads.OutcomeSuccess, result.Outcome)

	text := result.Content[0].Text
	assert.Contains(t, text, "0: first")
	assert.Contains(t, text, "1: second")
	assert.Contains(t, text, "2: third")
}

func TestReadFileOffset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("first\nsecond\nthird\n"), 0644))

	tool := &ReadFileTool{}
	result := tool.Execute(context.Background(), dirCtx(dir), `{"path":"hello.txt","offset":2}`)
	require.Equal(t, threads.OutcomeSuccess, result.Outcome)
	assert.NotContains(t, result.Content[0].Text, "first")
	assert.Contains(t, result.Content[0].Text, "2: third")
}

func TestReadFileOffsetPastEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.txt"), []byte("only\n"), 0644))

	tool := &ReadFileTool{}
	result := tool.Execute(context.Background(), dirCtx(dir), `{"path":"short.txt","offset":10}`)
	assert.Equal(t, threads.OutcomeError, result.Outcome)
	assert.Equal(t, threads.ErrorKindRuntime, result.ErrorKind)
}

func TestReadFileNegativeOffset(t *testing.T) {
	tool := &ReadFileTool{}
	result := tool.Execute(context.Background(), dirCtx(t.TempDir()), `{"path":"x","offset":-1}`)
	assert.Equal(t, threads.ErrorKindBadInput, result.ErrorKind)
}

func TestReadFileMissing(t *testing.T) {
	tool := &ReadFileTool{}
	result := tool.Execute(context.Background(), dirCtx(t.TempDir()), `{"path":"nope.txt"}`)
	assert.Equal(t, threads.OutcomeError, result.Outcome)
	assert.Equal(t, threads.ErrorKindRuntime, result.ErrorKind)
}

func TestWriteFileCreatesParents(t *testing.T) {
	dir := t.TempDir()

	tool := &WriteFileTool{}
	result := tool.Execute(context.Background(), dirCtx(dir), `{"path":"nested/deep/out.txt","content":"payload"}`)
	require.Equal(t, threads.OutcomeSuccess, result.Outcome)

	written, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(written))
}

func TestWriteFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	tool := &WriteFileTool{}
	result := tool.Execute(context.Background(), dirCtx(dir), `{"path":"out.txt","content":"new"}`)
	require.Equal(t, threads.OutcomeSuccess, result.Outcome)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(written))
}

func TestListDirGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	for _, name := range []string{"a.go", "b.txt", "sub/c.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	tool := &ListDirTool{}
	result := tool.Execute(context.Background(), dirCtx(dir), `{"pattern":"**/*.go"}`)
	require.Equal(t, threads.OutcomeSuccess, result.Outcome)

	text := result.Content[0].Text
	assert.Contains(t, text, "a.go")
	assert.Contains(t, text, "sub/c.go")
	assert.NotContains(t, text, "b.txt")
}

func TestListDirNoMatches(t *testing.T) {
	tool := &ListDirTool{}
	result := tool.Execute(context.Background(), dirCtx(t.TempDir()), `{"pattern":"*.rs"}`)
	require.Equal(t, threads.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "no matches", result.Content[0].Text)
}

func TestThinkingToolIsInert(t *testing.T) {
	tool := &ThinkingTool{}
	result := tool.Execute(context.Background(), dirCtx(""), `{"thought":"what if"}`)
	assert.Equal(t, threads.OutcomeSuccess, result.Outcome)
}

type stubDelegator struct {
	task    string
	summary string
	weak    bool
}

func (d *stubDelegator) Delegate(ctx context.Context, task string, constraints tooltypes.DelegateConstraints) (string, error) {
	d.task = task
	d.weak = constraints.UseWeakModel
	return d.summary, nil
}

func TestDelegateToolForwardsTask(t *testing.T) {
	delegator := &stubDelegator{summary: "all done"}
	execCtx := tooltypes.ExecContext{ThreadID: "t1", TurnID: "turn-1", Delegator: delegator}

	tool := &DelegateTool{}
	result := tool.Execute(context.Background(), execCtx, `{"task":"count the files"}`)
	require.Equal(t, threads.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "all done", result.Content[0].Text)
	assert.Equal(t, "count the files", delegator.task)
	assert.True(t, delegator.weak)
}

func TestDelegateToolWithoutDelegator(t *testing.T) {
	tool := &DelegateTool{}
	result := tool.Execute(context.Background(), dirCtx(""), `{"task":"x"}`)
	assert.Equal(t, threads.OutcomeError, result.Outcome)
	assert.Equal(t, threads.ErrorKindRuntime, result.ErrorKind)
}
