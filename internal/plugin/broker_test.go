// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpps/mpps/internal/plugin"
)

func TestBroker_ShutdownClosesQueues(t *testing.T) {
	b := plugin.NewBroker()
	q1 := b.NewQueue()
	q2 := b.NewQueue()
	assert.False(t, q1.Closed())

	b.Shutdown()
	b.Shutdown()

	assert.True(t, q1.Closed())
	assert.True(t, q2.Closed())
}

func TestBroker_QueueAfterShutdownIsClosed(t *testing.T) {
	b := plugin.NewBroker()
	b.Shutdown()
	assert.True(t, b.NewQueue().Closed())
}
