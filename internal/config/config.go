// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Package config loads supervisor settings from defaults, an optional YAML
// file and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/mpps/mpps/internal/logging"
	"github.com/mpps/mpps/internal/xdg"
)

// Error codes.
const (
	CodeInvalid    = "CONFIG_INVALID"
	CodeLoadFailed = "CONFIG_LOAD_FAILED"
)

// Isolation modes.
const (
	IsolationProcess   = "process"
	IsolationInProcess = "inprocess"
)

// FileName is the supervisor configuration file looked up in the XDG config
// directory when no explicit path is given.
const FileName = "config.yaml"

// Keys.
const (
	KeyPluginsDir     = "plugins_dir"
	KeyConfigDir      = "config_dir"
	KeyIsolation      = "isolation"
	KeyPollInterval   = "poll_interval"
	KeyCallbackBuffer = "callback_buffer"
	KeyMetricsAddr    = "metrics_addr"
	KeyLogFormat      = "log_format"
	KeyLogLevel       = "log_level"
)

// Config holds supervisor settings.
type Config struct {
	PluginsDir     string        `koanf:"plugins_dir"`
	ConfigDir      string        `koanf:"config_dir"`
	Isolation      string        `koanf:"isolation"`
	PollInterval   time.Duration `koanf:"poll_interval"`
	CallbackBuffer int           `koanf:"callback_buffer"`
	MetricsAddr    string        `koanf:"metrics_addr"`
	LogFormat      string        `koanf:"log_format"`
	LogLevel       string        `koanf:"log_level"`
}

// Default returns the built-in settings. Directories follow XDG and fall
// back to the working directory when HOME is unset.
func Default() Config {
	pluginsDir, err := xdg.PluginsDir()
	if err != nil {
		pluginsDir = "plugins"
	}
	configDir, err := xdg.PluginConfigDir()
	if err != nil {
		configDir = "conf.d"
	}
	return Config{
		PluginsDir:     pluginsDir,
		ConfigDir:      configDir,
		Isolation:      IsolationProcess,
		PollInterval:   100 * time.Millisecond,
		CallbackBuffer: 64,
		MetricsAddr:    "",
		LogFormat:      "text",
		LogLevel:       "info",
	}
}

func (c Config) values() map[string]any {
	return map[string]any{
		KeyPluginsDir:     c.PluginsDir,
		KeyConfigDir:      c.ConfigDir,
		KeyIsolation:      c.Isolation,
		KeyPollInterval:   c.PollInterval,
		KeyCallbackBuffer: c.CallbackBuffer,
		KeyMetricsAddr:    c.MetricsAddr,
		KeyLogFormat:      c.LogFormat,
		KeyLogLevel:       c.LogLevel,
	}
}

// RegisterFlags adds one flag per key to fs. Flag names use dashes.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(flagName(KeyPluginsDir), d.PluginsDir, "directory scanned for binary plugins")
	fs.String(flagName(KeyConfigDir), d.ConfigDir, "directory holding <plugin>.conf files")
	fs.String(flagName(KeyIsolation), d.Isolation, "worker isolation (process or inprocess)")
	fs.Duration(flagName(KeyPollInterval), d.PollInterval, "dispatcher idle sleep")
	fs.Int(flagName(KeyCallbackBuffer), d.CallbackBuffer, "messages buffered per callback")
	fs.String(flagName(KeyMetricsAddr), d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String(flagName(KeyLogFormat), d.LogFormat, "log format (json or text)")
	fs.String(flagName(KeyLogLevel), d.LogLevel, "log level (debug, info, warn, error)")
}

func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }

func keyName(flag string) string { return strings.ReplaceAll(flag, "-", "_") }

// DefaultPath returns the config file in the XDG config directory.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err //nolint:wrapcheck // xdg errors are already descriptive
	}
	return filepath.Join(dir, FileName), nil
}

// Load builds a Config. An explicit path must exist; with an empty path the
// default file is read when present. Flags override the file only when set
// on the command line. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range Default().values() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code(CodeLoadFailed).With("key", key).Wrapf(err, "set default")
		}
	}

	if path == "" {
		if p, err := DefaultPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeLoadFailed).With("path", path).Wrapf(err, "load config file")
		}
	}

	if flags != nil {
		known := Default().values()
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := keyName(f.Name)
			if _, ok := known[key]; !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeLoadFailed).Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	invalid := func(key string, format string, args ...any) error {
		return oops.Code(CodeInvalid).With("key", key).Errorf(format, args...)
	}
	if c.ConfigDir == "" {
		return invalid(KeyConfigDir, "config_dir is required")
	}
	if c.Isolation != IsolationProcess && c.Isolation != IsolationInProcess {
		return invalid(KeyIsolation, "isolation must be %q or %q, got %q", IsolationProcess, IsolationInProcess, c.Isolation)
	}
	if c.PollInterval <= 0 {
		return invalid(KeyPollInterval, "poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.CallbackBuffer <= 0 {
		return invalid(KeyCallbackBuffer, "callback_buffer must be positive, got %d", c.CallbackBuffer)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid(KeyLogFormat, "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code(CodeInvalid).With("key", KeyLogLevel).Wrap(err)
	}
	return nil
}
