package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/invopop/jsonschema"

	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

// WriteFileTool writes content to a file, creating parent directories as
// needed. Overwrites are destructive, so the gate asks by default.
type WriteFileTool struct{}

// WriteFileInput is the declared input shape of write_file.
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"description=The path of the file to write"`
	Content string `json:"content" jsonschema:"description=The full content to write"`
}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return `Writes the given content to a file, replacing any existing content.
Parent directories are created when missing.`
}

func (t *WriteFileTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[WriteFileInput]()
}

func (t *WriteFileTool) Annotations() tooltypes.Annotations {
	return tooltypes.Annotations{Destructive: true, Idempotent: true}
}

func (t *WriteFileTool) Timeout() time.Duration {
	return 0
}

func (t *WriteFileTool) Execute(ctx context.Context, execCtx tooltypes.ExecContext, input string) tooltypes.Result {
	var in WriteFileInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return tooltypes.ErrorResult("bad_input", err.Error())
	}

	path := in.Path
	if !filepath.IsAbs(path) && execCtx.WorkingDir != "" {
		path = filepath.Join(execCtx.WorkingDir, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tooltypes.ErrorResult("runtime", fmt.Sprintf("failed to create directory: %s", err))
	}
	if err := os.WriteFile(path, []byte(in.Content), 0644); err != nil {
		return tooltypes.ErrorResult("runtime", fmt.Sprintf("failed to write file: %s", err))
	}

	return tooltypes.TextResult(fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path))
}
