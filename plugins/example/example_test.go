// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package example_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpps/mpps/pkg/plugin"
	"github.com/mpps/mpps/plugins/example"
)

func configDir(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(plugin.ConfigPath(dir, name), []byte(body), 0o600))
	return dir
}

func run(t *testing.T, factory plugin.Factory, dir, name string) []plugin.Message {
	t.Helper()
	q := plugin.NewQueue()
	w, err := factory(q, dir, name)
	require.NoError(t, err)
	require.NoError(t, w.Run(context.Background()))
	return q.Drain()
}

func statuses(msgs []plugin.Message) []plugin.Status {
	out := make([]plugin.Status, len(msgs))
	for i, m := range msgs {
		out[i] = m.Status
	}
	return out
}

func TestFactories(t *testing.T) {
	f := example.Factories()
	assert.Contains(t, f, example.ExampleName)
	assert.Contains(t, f, example.TickerName)
}

func TestExample_Sequence(t *testing.T) {
	msgs := run(t, example.NewExample, configDir(t, "example", "{}"), "example")

	assert.Equal(t, []plugin.Status{
		plugin.StatusNotify,
		plugin.StatusWarning,
		plugin.StatusData,
		plugin.StatusFinished,
	}, statuses(msgs))
	assert.Equal(t, "Example Data", msgs[2].Content)
	for _, m := range msgs {
		assert.Equal(t, "example", m.Issuer)
	}
}

func TestExample_DebugAndData(t *testing.T) {
	dir := configDir(t, "example", "debug: true\ndata: hello\n")
	msgs := run(t, example.NewExample, dir, "example")

	assert.Equal(t, []plugin.Status{
		plugin.StatusNotify,
		plugin.StatusWarning,
		plugin.StatusNotify,
		plugin.StatusError,
		plugin.StatusData,
		plugin.StatusFinished,
	}, statuses(msgs))
	assert.Equal(t, "hello", msgs[4].Content)
}

func TestExample_MissingConfig(t *testing.T) {
	msgs := run(t, example.NewExample, filepath.Join(t.TempDir(), "none"), "example")

	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, plugin.StatusWarning, msgs[0].Status)
	assert.Contains(t, msgs[0].Content, "Unable to open config file")
}

func TestTicker_Counts(t *testing.T) {
	dir := configDir(t, "ticker", "count: 2\ninterval: 1ms\n")
	msgs := run(t, example.NewTicker, dir, "ticker")

	require.Len(t, msgs, 4)
	assert.Equal(t, "1", msgs[1].Content)
	assert.Equal(t, "2", msgs[2].Content)
	assert.Equal(t, plugin.StatusFinished, msgs[3].Status)
}

func TestTicker_InvalidInterval(t *testing.T) {
	dir := configDir(t, "ticker", "count: 0\ninterval: soon\n")
	msgs := run(t, example.NewTicker, dir, "ticker")

	assert.Equal(t, []plugin.Status{
		plugin.StatusNotify,
		plugin.StatusWarning,
		plugin.StatusFinished,
	}, statuses(msgs))
	assert.Contains(t, msgs[1].Content, "soon")
}

func TestTicker_Cancel(t *testing.T) {
	dir := configDir(t, "ticker", "count: 100\ninterval: 1h\n")
	w, err := example.NewTicker(plugin.NewQueue(), dir, "ticker")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Run(ctx), context.DeadlineExceeded)
}
