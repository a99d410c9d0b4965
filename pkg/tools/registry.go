// Package tools provides the tool registry, exact input validation, and the
// executor that drives every tool invocation through resolution, validation,
// the approval gate, and sandboxed execution with timeout and cancellation.
package tools

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	llmtypes "github.com/lacehq/lace/pkg/types/llm"
	tooltypes "github.com/lacehq/lace/pkg/types/tools"
)

// GenerateSchema reflects the input struct of a tool into a JSON schema.
// Additional properties are disallowed so unknown fields fail validation.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Registry holds the registered tools by name. Registration happens at
// startup; lookups afterwards are read-mostly.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tooltypes.Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]tooltypes.Tool)}
}

// Register adds a tool. Re-registering a name is an error.
func (r *Registry) Register(tool tooltypes.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return errors.Errorf("tool already registered: %s", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (tooltypes.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateNames checks that every name resolves to a registered tool.
func (r *Registry) ValidateNames(names []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if _, exists := r.tools[name]; !exists {
			return errors.Errorf("unknown tool: %s", name)
		}
	}
	return nil
}

// Descriptors returns the provider-facing descriptors for the given tool
// names; empty names means every registered tool.
func (r *Registry) Descriptors(names []string) ([]llmtypes.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	descriptors := make([]llmtypes.ToolDescriptor, 0, len(names))
	for _, name := range names {
		tool, exists := r.tools[name]
		if !exists {
			return nil, errors.Errorf("unknown tool: %s", name)
		}
		schemaJSON, err := json.Marshal(tool.GenerateSchema())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode schema of tool %s", name)
		}
		descriptors = append(descriptors, llmtypes.ToolDescriptor{
			Name:        name,
			Description: tool.Description(),
			InputSchema: schemaJSON,
		})
	}
	return descriptors, nil
}
