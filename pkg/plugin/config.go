// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
)

// ConfigExt is the extension of per-plugin configuration files.
const ConfigExt = ".conf"

// Config is the per-plugin key/value configuration. Keys are delimited by
// '.' for nested values. The zero value is an empty configuration.
type Config struct {
	k *koanf.Koanf
}

// ConfigPath returns the configuration file path for the named plugin.
func ConfigPath(dir, name string) string {
	return filepath.Join(dir, name+ConfigExt)
}

// LoadConfig reads <dir>/<name>.conf. The file may hold JSON or YAML.
func LoadConfig(dir, name string) (*Config, error) {
	path := ConfigPath(dir, name)
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, oops.
			Code("CONFIG_UNAVAILABLE").
			With("plugin", name).
			With("path", path).
			Wrapf(err, "load plugin config")
	}
	return &Config{k: k}, nil
}

// EmptyConfig returns a configuration without keys.
func EmptyConfig() *Config {
	return &Config{k: koanf.New(".")}
}

func (c *Config) store() *koanf.Koanf {
	if c == nil || c.k == nil {
		return koanf.New(".")
	}
	return c.k
}

// Exists reports whether key is set.
func (c *Config) Exists(key string) bool { return c.store().Exists(key) }

// Get returns the raw value for key or nil.
func (c *Config) Get(key string) any { return c.store().Get(key) }

// String returns the string value for key or "".
func (c *Config) String(key string) string { return c.store().String(key) }

// Int returns the int value for key or 0.
func (c *Config) Int(key string) int { return c.store().Int(key) }

// Strings returns the string slice value for key or nil.
func (c *Config) Strings(key string) []string { return c.store().Strings(key) }

// Bool returns the bool value for key or false.
func (c *Config) Bool(key string) bool { return c.store().Bool(key) }

// Keys returns every flattened key.
func (c *Config) Keys() []string { return c.store().Keys() }

// All returns the configuration as a nested map.
func (c *Config) All() map[string]any { return c.store().Raw() }

// Unmarshal decodes the configuration into out using `koanf` struct tags.
func (c *Config) Unmarshal(out any) error {
	if err := c.store().Unmarshal("", out); err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "decode plugin config")
	}
	return nil
}
