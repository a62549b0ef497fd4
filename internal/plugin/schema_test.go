// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpps/mpps/internal/plugin"
)

func TestValidateSchema_ValidBinaryManifest(t *testing.T) {
	yaml := `
name: echo
version: 2.1.0
type: binary
description: test worker
binary-plugin:
  executable: echo-linux-amd64
  args: ["-v"]
`
	assert.NoError(t, plugin.ValidateSchema([]byte(yaml)))
}

func TestValidateSchema_NameLength(t *testing.T) {
	// 64 characters is the limit
	ok := binaryManifest("a234567890123456789012345678901234567890123456789012345678901234", "1.0.0")
	tooLong := binaryManifest("a2345678901234567890123456789012345678901234567890123456789012345", "1.0.0")

	assert.NoError(t, plugin.ValidateSchema([]byte(ok)))
	assert.Error(t, plugin.ValidateSchema([]byte(tooLong)))
}

func TestValidateSchema_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing name", yaml: "version: 1.0.0\ntype: binary\nbinary-plugin:\n  executable: x\n"},
		{name: "missing version", yaml: "name: test\ntype: binary\nbinary-plugin:\n  executable: x\n"},
		{name: "missing type", yaml: "name: test\nversion: 1.0.0\nbinary-plugin:\n  executable: x\n"},
		{name: "missing executable", yaml: "name: test\nversion: 1.0.0\ntype: binary\nbinary-plugin: {}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, plugin.ValidateSchema([]byte(tt.yaml)))
		})
	}
}

func TestValidateSchema_InvalidNamePattern(t *testing.T) {
	assert.Error(t, plugin.ValidateSchema([]byte(binaryManifest("Bad_Name", "1.0.0"))))
}

func TestValidateSchema_InvalidType(t *testing.T) {
	yaml := "name: test\nversion: 1.0.0\ntype: wasm\nbinary-plugin:\n  executable: x\n"
	assert.Error(t, plugin.ValidateSchema([]byte(yaml)))
}

func TestValidateSchema_EmptyInput(t *testing.T) {
	assert.Error(t, plugin.ValidateSchema(nil))
}

func TestValidateSchema_InvalidYAML(t *testing.T) {
	err := plugin.ValidateSchema([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestGenerateSchema(t *testing.T) {
	schema, err := plugin.GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(schema, &doc))
	assert.Equal(t, plugin.SchemaID, doc["$id"])
	assert.Equal(t, "MPPS Plugin Manifest", doc["title"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, field := range []string{"name", "version", "type", "description", "engine", "binary-plugin"} {
		assert.Contains(t, props, field)
	}
}

func TestResetSchemaCache(t *testing.T) {
	yaml := []byte(binaryManifest("test", "1.0.0"))
	require.NoError(t, plugin.ValidateSchema(yaml))

	plugin.ResetSchemaCache()

	assert.NoError(t, plugin.ValidateSchema(yaml))
}

func TestFormatSchemaError(t *testing.T) {
	assert.Empty(t, plugin.FormatSchemaError(nil))
	assert.Equal(t, "missing property", plugin.FormatSchemaError(errors.New("schema validation failed: missing property")))
	assert.Equal(t, "other", plugin.FormatSchemaError(errors.New("other")))
}
