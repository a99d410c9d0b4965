package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/invopop/jsonschema"

	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

const maxListResults = 500

// ListDirTool lists files matching a glob pattern relative to the working
// directory.
type ListDirTool struct{}

// ListDirInput is the declared input shape of list_dir.
type ListDirInput struct {
	Pattern string `json:"pattern" jsonschema:"description=Doublestar glob pattern relative to the working directory (e.g. **/*.go)"`
}

func (t *ListDirTool) Name() string {
	return "list_dir"
}

func (t *ListDirTool) Description() string {
	return `Lists files matching a glob pattern. Supports ** for recursive
matching, e.g. "src/**/*.go". Results are sorted and capped.`
}

func (t *ListDirTool) GenerateSchema() *jsonschema.Schema {
	return GenerateSchema[ListDirInput]()
}

func (t *ListDirTool) Annotations() tooltypes.Annotations {
	return tooltypes.Annotations{ReadOnly: true, Idempotent: true, ParallelSafe: true}
}

func (t *ListDirTool) Timeout() time.Duration {
	return 0
}

func (t *ListDirTool) Execute(ctx context.Context, execCtx tooltypes.ExecContext, input string) tooltypes.Result {
	var in ListDirInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return tooltypes.ErrorResult("bad_input", err.Error())
	}
	if in.Pattern == "" {
		in.Pattern = "*"
	}

	root := execCtx.WorkingDir
	if root == "" {
		root = "."
	}

	matches, err := doublestar.Glob(os.DirFS(root), in.Pattern)
	if err != nil {
		return tooltypes.ErrorResult("bad_input", fmt.Sprintf("invalid glob pattern: %s", err))
	}
	sort.Strings(matches)

	truncated := false
	if len(matches) > maxListResults {
		matches = matches[:maxListResults]
		truncated = true
	}

	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n... [truncated at %d results]", maxListResults)
	}
	if out == "" {
		out = "no matches"
	}
	return tooltypes.TextResult(out)
}
