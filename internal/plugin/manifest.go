// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Package plugin supervises plugin workers: it owns the plugin catalog,
// drives the load/run/stop lifecycle and relays worker messages to
// pollers and callbacks.
package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest filename looked up in each plugin directory.
const ManifestFile = "plugin.yaml"

// Type identifies how a plugin's worker is hosted.
type Type string

// Plugin types supported by the system.
const (
	TypeBinary Type = "binary"
)

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string        `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version      string        `yaml:"version" json:"version"`
	Type         Type          `yaml:"type" json:"type" jsonschema:"enum=binary"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Engine       string        `yaml:"engine,omitempty" json:"engine,omitempty"`
	BinaryPlugin *BinaryConfig `yaml:"binary-plugin,omitempty" json:"binary-plugin,omitempty"`
}

// BinaryConfig holds binary plugin configuration.
type BinaryConfig struct {
	Executable string   `yaml:"executable" json:"executable"`
	Args       []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// ValidName reports whether name is acceptable as a plugin name.
func ValidName(name string) bool {
	return name != "" && len(name) <= maxNameLength && namePattern.MatchString(name)
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
	}

	if m.Engine != "" {
		if _, err := semver.NewConstraint(m.Engine); err != nil {
			return fmt.Errorf("engine %q is not a valid version constraint: %w", m.Engine, err)
		}
	}

	switch m.Type {
	case TypeBinary:
		if m.BinaryPlugin == nil {
			return fmt.Errorf("binary-plugin is required when type is binary")
		}
		if m.BinaryPlugin.Executable == "" {
			return fmt.Errorf("binary-plugin.executable is required")
		}
	default:
		return fmt.Errorf("type must be 'binary', got %q", m.Type)
	}

	return nil
}

// SupportsEngine reports whether the manifest's engine constraint admits
// the given supervisor version. An empty constraint or an unparseable
// version admits everything.
func (m *Manifest) SupportsEngine(version string) bool {
	if m.Engine == "" {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	c, err := semver.NewConstraint(m.Engine)
	if err != nil {
		return false
	}
	return c.Check(v)
}
