package tools

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

// schemaCache holds compiled schemas keyed by schema text. Tool schemas are
// static after startup so the cache never invalidates.
var schemaCache sync.Map

func compileSchema(schemaJSON []byte) (*jsonschema.Schema, error) {
	key := string(schemaJSON)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateInput checks the raw input JSON against the tool's declared
// schema. Validation is exact: the generated schemas disallow additional
// properties, so unknown fields are rejected.
func ValidateInput(tool tooltypes.Tool, input string) error {
	schemaJSON, err := json.Marshal(tool.GenerateSchema())
	if err != nil {
		return errors.Wrapf(err, "failed to encode schema of tool %s", tool.Name())
	}

	schema, err := compileSchema(schemaJSON)
	if err != nil {
		return errors.Wrapf(err, "failed to compile schema of tool %s", tool.Name())
	}

	var decoded any
	if err := json.Unmarshal([]byte(input), &decoded); err != nil {
		return errors.Wrap(err, "input is not valid JSON")
	}

	if err := schema.Validate(decoded); err != nil {
		return errors.Wrapf(err, "input rejected by schema of tool %s", tool.Name())
	}
	return nil
}
