package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/invopop/jsonschema"

	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

const maxReadBytes = 100_000

// ReadFileTool reads a file and returns its contents with line numbers.
type ReadFileTool struct{}

// ReadFileInput is the declared input shape of read_file.
type ReadFileInput struct {
	Path   string `json:"path" jsonschema:"description=The path of the file to read"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=The 0-indexed line number to start reading from"`
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return `Reads a file and returns its contents with line numbers.

Parameters:
- path: the path of the file to read
- offset: the 0-indexed line number to start reading from (default: 0)

Use a non-zero offset to page through large files.`
}

func (t *ReadFileTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[ReadFileInput]()
}

func (t *ReadFileTool) Annotations() tooltypes.Annotations {
	return tooltypes.Annotations{ReadOnly: true, Idempotent: true, ParallelSafe: true}
}

func (t *ReadFileTool) Timeout() time.Duration {
	return 0
}

func (t *ReadFileTool) Execute(ctx context.Context, execCtx tooltypes.ExecContext, input string) tooltypes.Result {
	var in ReadFileInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return tooltypes.ErrorResult("bad_input", err.Error())
	}
	if in.Offset < 0 {
		return tooltypes.ErrorResult("bad_input", "offset must be a non-negative integer")
	}

	path := in.Path
	if !filepath.IsAbs(path) && execCtx.WorkingDir != "" {
		path = filepath.Join(execCtx.WorkingDir, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return tooltypes.ErrorResult("runtime", fmt.Sprintf("failed to open file: %s", err))
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for lineNo < in.Offset && scanner.Scan() {
		lineNo++
	}
	if lineNo < in.Offset {
		return tooltypes.ErrorResult("runtime",
			fmt.Sprintf("file has only %d lines, less than the requested offset %d", lineNo, in.Offset))
	}

	var out string
	bytesRead := 0
	truncated := false
	for scanner.Scan() {
		line := scanner.Text()
		bytesRead += len(line)
		if bytesRead > maxReadBytes {
			truncated = true
			break
		}
		out += fmt.Sprintf("%4d: %s\n", lineNo, line)
		lineNo++
	}
	if err := scanner.Err(); err != nil {
		return tooltypes.ErrorResult("runtime", fmt.Sprintf("error reading file: %s", err))
	}
	if truncated {
		out += fmt.Sprintf("\n... [truncated at %d bytes]", maxReadBytes)
	}

	return tooltypes.TextResult(out)
}
