// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpps/mpps/pkg/plugin"
)

func msg(status plugin.Status, content string) plugin.Message {
	return plugin.Message{Status: status, Content: content, Issuer: "q"}
}

func TestQueue_FIFO(t *testing.T) {
	q := plugin.NewQueue()
	require.NoError(t, q.Put(msg(plugin.StatusData, "1")))
	require.NoError(t, q.Put(msg(plugin.StatusData, "2")))
	assert.Equal(t, 2, q.Len())

	m, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, "1", m.Content)
	m, ok = q.TryGet()
	require.True(t, ok)
	assert.Equal(t, "2", m.Content)

	_, ok = q.TryGet()
	assert.False(t, ok, "empty queue must not block or yield")
}

func TestQueue_GetBlocksUntilPut(t *testing.T) {
	q := plugin.NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Put(msg(plugin.StatusNotify, "late"))
	}()

	m, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", m.Content)
}

func TestQueue_GetHonoursContext(t *testing.T) {
	q := plugin.NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_Close(t *testing.T) {
	q := plugin.NewQueue()
	require.NoError(t, q.Put(msg(plugin.StatusData, "queued")))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	require.ErrorIs(t, q.Put(msg(plugin.StatusData, "late")), plugin.ErrQueueClosed)

	m, err := q.Get(context.Background())
	require.NoError(t, err, "queued messages stay readable after close")
	assert.Equal(t, "queued", m.Content)

	_, err = q.Get(context.Background())
	require.ErrorIs(t, err, plugin.ErrQueueClosed)
}

func TestQueue_Drain(t *testing.T) {
	q := plugin.NewQueue()
	for range 3 {
		require.NoError(t, q.Put(msg(plugin.StatusData, "x")))
	}
	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, 0, q.Len())
}
