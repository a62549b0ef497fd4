// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpps/mpps/pkg/plugin"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+plugin.ConfigExt), []byte(content), 0o600))
}

func drain(w plugin.Worker) []plugin.Message {
	return slices.Collect(w.Messages())
}

func TestNewBase_AnnouncesInitialized(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "alpha", `{"interval": 5, "target": {"host": "localhost"}}`)

	b := plugin.NewBase(plugin.NewQueue(), dir, "alpha")

	msgs := drain(b)
	require.Len(t, msgs, 1)
	assert.Equal(t, plugin.StatusNotify, msgs[0].Status)
	assert.Equal(t, "Initialized", msgs[0].Content)
	assert.Equal(t, "alpha", msgs[0].Issuer)

	assert.Equal(t, 5, b.Config().Int("interval"))
	assert.Equal(t, "localhost", b.Config().String("target.host"))
}

func TestNewBase_MissingConfigWarns(t *testing.T) {
	dir := t.TempDir()

	b := plugin.NewBase(plugin.NewQueue(), dir, "beta")

	msgs := drain(b)
	require.Len(t, msgs, 2)
	assert.Equal(t, plugin.StatusWarning, msgs[0].Status)
	assert.Contains(t, msgs[0].Content, filepath.Join(dir, "beta.conf"))
	assert.Equal(t, plugin.StatusNotify, msgs[1].Status)

	assert.NotNil(t, b.Config())
	assert.Empty(t, b.Config().Keys())
}

func TestBase_SendInvalidStatusSubstitutesError(t *testing.T) {
	b := plugin.NewBase(plugin.NewQueue(), t.TempDir(), "gamma")
	drain(b)

	require.NoError(t, b.Send("bogus", "payload"))

	msgs := drain(b)
	require.Len(t, msgs, 1)
	assert.Equal(t, plugin.StatusError, msgs[0].Status)
	assert.Contains(t, msgs[0].Content, "bogus")
	assert.Equal(t, "gamma", msgs[0].Issuer)
}

func TestBase_SendClearsScratch(t *testing.T) {
	b := plugin.NewBase(plugin.NewQueue(), t.TempDir(), "delta")
	drain(b)

	require.NoError(t, b.Send(plugin.StatusData, "first"))
	require.NoError(t, b.Send(plugin.StatusFinished, ""))

	msgs := drain(b)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Empty(t, msgs[1].Content, "stale content must not leak into the next send")
	assert.Equal(t, -1, msgs[0].ID.Compare(msgs[1].ID), "ids follow send order")
}

func TestBase_SendAfterQueueClosed(t *testing.T) {
	q := plugin.NewQueue()
	b := plugin.NewBase(q, t.TempDir(), "eps")
	q.Close()

	require.ErrorIs(t, b.Send(plugin.StatusData, "x"), plugin.ErrQueueClosed)
}

func TestBase_MessagesStopsEarly(t *testing.T) {
	b := plugin.NewBase(plugin.NewQueue(), t.TempDir(), "zeta")
	drain(b)
	for range 3 {
		require.NoError(t, b.Send(plugin.StatusData, "x"))
	}

	for range b.Messages() {
		break
	}
	assert.Equal(t, 2, b.Queue().Len())
}

func TestBase_RunReturnsOnCancel(t *testing.T) {
	b := plugin.NewBase(plugin.NewQueue(), t.TempDir(), "eta")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := b.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), plugin.DefaultRunDuration)
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "theta", "name: theta\nenabled: true\n")

	cfg, err := plugin.LoadConfig(dir, "theta")
	require.NoError(t, err)
	assert.True(t, cfg.Bool("enabled"))

	var out struct {
		Name string `koanf:"name"`
	}
	require.NoError(t, cfg.Unmarshal(&out))
	assert.Equal(t, "theta", out.Name)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := plugin.LoadConfig(t.TempDir(), "nope")
	require.Error(t, err)
}
