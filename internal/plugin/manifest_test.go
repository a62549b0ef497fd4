// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpps/mpps/internal/plugin"
)

func binaryManifest(name, version string) string {
	return `
name: ` + name + `
version: ` + version + `
type: binary
binary-plugin:
  executable: worker
`
}

func TestParseManifest_BinaryPlugin(t *testing.T) {
	yaml := `
name: echo
version: 2.1.0
type: binary
description: Repeats its configured greeting
engine: ">= 1.0.0"
binary-plugin:
  executable: echo-linux-amd64
  args: ["--quiet"]
`
	m, err := plugin.ParseManifest([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "echo", m.Name)
	assert.Equal(t, "2.1.0", m.Version)
	assert.Equal(t, plugin.TypeBinary, m.Type)
	assert.Equal(t, "Repeats its configured greeting", m.Description)
	require.NotNil(t, m.BinaryPlugin)
	assert.Equal(t, "echo-linux-amd64", m.BinaryPlugin.Executable)
	assert.Equal(t, []string{"--quiet"}, m.BinaryPlugin.Args)
}

func TestParseManifest_InvalidName(t *testing.T) {
	tests := []struct {
		name     string
		plugName string
	}{
		{name: "uppercase not allowed", plugName: "Invalid"},
		{name: "underscore not allowed", plugName: "invalid_name"},
		{name: "starts with number", plugName: "1plugin"},
		{name: "trailing hyphen", plugName: "echo-"},
		{name: "empty name", plugName: `""`},
		{name: "name too long", plugName: "this-is-a-very-long-plugin-name-that-exceeds-the-maximum-allowed-length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plugin.ParseManifest([]byte(binaryManifest(tt.plugName, "1.0.0")))
			require.Error(t, err, "expected error for invalid name")
			assert.Contains(t, err.Error(), "name")
		})
	}
}

func TestParseManifest_ValidNames(t *testing.T) {
	tests := []struct {
		name     string
		plugName string
	}{
		{name: "simple", plugName: "echo"},
		{name: "with dash", plugName: "echo-bot"},
		{name: "with numbers", plugName: "echo123"},
		{name: "single char", plugName: "a"},
		{name: "exactly max length (64 chars)", plugName: "a234567890123456789012345678901234567890123456789012345678901234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := plugin.ParseManifest([]byte(binaryManifest(tt.plugName, "1.0.0")))
			require.NoError(t, err, "ParseManifest() error for name %q", tt.plugName)
			assert.Equal(t, tt.plugName, m.Name)
			assert.True(t, plugin.ValidName(tt.plugName))
		})
	}
}

func TestParseManifest_InvalidVersion(t *testing.T) {
	for _, version := range []string{`""`, "latest", "1", "1.0", "v1.0.0", "1.0.0-"} {
		t.Run(version, func(t *testing.T) {
			_, err := plugin.ParseManifest([]byte(binaryManifest("test", version)))
			require.Error(t, err, "expected error for version %q", version)
			assert.Contains(t, err.Error(), "version")
		})
	}
}

func TestParseManifest_ValidVersion(t *testing.T) {
	for _, version := range []string{"1.0.0", "1.0.0-alpha.1", "1.0.0+build", "0.0.0", "100.200.300"} {
		t.Run(version, func(t *testing.T) {
			m, err := plugin.ParseManifest([]byte(binaryManifest("test", version)))
			require.NoError(t, err)
			assert.Equal(t, version, m.Version)
		})
	}
}

func TestParseManifest_MissingTypeSpecificConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "binary without binary-plugin",
			yaml:    "name: test\nversion: 1.0.0\ntype: binary\n",
			wantErr: "binary-plugin is required",
		},
		{
			name:    "binary with empty executable",
			yaml:    "name: test\nversion: 1.0.0\ntype: binary\nbinary-plugin:\n  executable: \"\"\n",
			wantErr: "binary-plugin.executable",
		},
		{
			name:    "unknown type",
			yaml:    "name: test\nversion: 1.0.0\ntype: lua\n",
			wantErr: "type must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plugin.ParseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	_, err := plugin.ParseManifest([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestParseManifest_EmptyInput(t *testing.T) {
	for _, input := range [][]byte{nil, {}, []byte("   \n\t")} {
		_, err := plugin.ParseManifest(input)
		assert.Error(t, err)
	}
}

func TestParseManifest_InvalidEngine(t *testing.T) {
	yaml := binaryManifest("test", "1.0.0") + "engine: not-a-version\n"
	_, err := plugin.ParseManifest([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine")
}

func TestManifest_SupportsEngine(t *testing.T) {
	tests := []struct {
		engine  string
		version string
		want    bool
	}{
		{engine: "", version: "1.0.0", want: true},
		{engine: ">= 1.0.0", version: "1.2.0", want: true},
		{engine: ">= 1.0.0, < 2.0.0", version: "2.0.0", want: false},
		{engine: "^1.2.0", version: "1.1.9", want: false},
		{engine: "~1.2.0", version: "1.2.7", want: true},
		{engine: ">= 1.0.0", version: "dev", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.engine+"@"+tt.version, func(t *testing.T) {
			m := &plugin.Manifest{Engine: tt.engine}
			assert.Equal(t, tt.want, m.SupportsEngine(tt.version))
		})
	}
}
