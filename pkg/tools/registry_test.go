package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "echo"}))

	tool, ok := registry.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "echo"}))
	assert.Error(t, registry.Register(&fakeTool{name: "echo"}))
}

func TestNamesSorted(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "zeta"}))
	require.NoError(t, registry.Register(&fakeTool{name: "alpha"}))

	assert.Equal(t, []string{"alpha", "zeta"}, registry.Names())
}

func TestValidateNames(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "echo"}))

	assert.NoError(t, registry.ValidateNames([]string{"echo"}))
	assert.Error(t, registry.ValidateNames([]string{"echo", "missing"}))
}

func TestDescriptorsCarrySchema(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "echo"}))

	descriptors, err := registry.Descriptors(nil)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "echo", descriptors[0].Name)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(descriptors[0].InputSchema, &schema))
	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, properties, "message")
	assert.Equal(t, false, schema["additionalProperties"])
}

func TestDescriptorsSubset(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "a"}))
	require.NoError(t, registry.Register(&fakeTool{name: "b"}))

	descriptors, err := registry.Descriptors([]string{"b"})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "b", descriptors[0].Name)

	_, err = registry.Descriptors([]string{"missing"})
	assert.Error(t, err)
}

func TestDefaultToolsRegisterCleanly(t *testing.T) {
	registry := NewRegistry()
	for _, tool := range DefaultTools() {
		require.NoError(t, registry.Register(tool))
	}
	assert.Contains(t, registry.Names(), "delegate")
	assert.Contains(t, registry.Names(), "read_file")
}

func TestGenerateSchemaDisallowsAdditionalProperties(t *testing.T) {
	schema := GenerateSchema[fakeInput]()
	raw, err := json.Marshal(schema)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["additionalProperties"])
}
