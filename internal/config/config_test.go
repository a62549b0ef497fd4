// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpps/mpps/pkg/errutil"
)

// isolate points XDG lookups at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	return home
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "mpps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.String("config", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data", "mpps", "plugins"), cfg.PluginsDir)
	assert.Equal(t, filepath.Join(home, "config", "mpps", "conf.d"), cfg.ConfigDir)
	assert.Equal(t, IsolationProcess, cfg.Isolation)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 64, cfg.CallbackBuffer)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeFile(t, t.TempDir(), `
isolation: inprocess
poll_interval: 250ms
callback_buffer: 8
log_format: json
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, IsolationInProcess, cfg.Isolation)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 8, cfg.CallbackBuffer)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel, "unset keys keep their defaults")
}

func TestLoad_DefaultFileIsPickedUp(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, "config", "mpps")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("log_level: debug\n"), 0o600))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, t.TempDir(), "callback_buffer: 8\nlog_level: warn\n")

	cfg, err := Load(path, flags(t, "--callback-buffer=16", "--config-dir=/tmp/conf.d"))
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.CallbackBuffer)
	assert.Equal(t, "/tmp/conf.d", cfg.ConfigDir)
	assert.Equal(t, "warn", cfg.LogLevel, "unchanged flags do not override the file")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeLoadFailed)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		key  string
	}{
		{"isolation", []string{"--isolation=thread"}, KeyIsolation},
		{"poll interval", []string{"--poll-interval=0s"}, KeyPollInterval},
		{"callback buffer", []string{"--callback-buffer=0"}, KeyCallbackBuffer},
		{"log format", []string{"--log-format=xml"}, KeyLogFormat},
		{"log level", []string{"--log-level=loud"}, KeyLogLevel},
		{"config dir", []string{"--config-dir="}, KeyConfigDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load("", flags(t, tt.args...))
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, CodeInvalid)
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}
}

func TestRegisterFlags(t *testing.T) {
	isolate(t)
	fs := flags(t)

	for _, name := range []string{"plugins-dir", "config-dir", "isolation", "poll-interval",
		"callback-buffer", "metrics-addr", "log-format", "log-level"} {
		assert.NotNil(t, fs.Lookup(name), name)
	}
}

func TestDefault_WithoutHome(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	d := Default()
	assert.Equal(t, "plugins", d.PluginsDir)
	assert.Equal(t, "conf.d", d.ConfigDir)
}
