// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"sync"

	pluginpkg "github.com/mpps/mpps/pkg/plugin"
)

// Broker materializes the queues of one loaded plugin and owns them until
// Shutdown.
type Broker struct {
	mu     sync.Mutex
	queues []*pluginpkg.Queue
	closed bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{}
}

// NewQueue creates a queue owned by the broker. After Shutdown the returned
// queue is already closed.
func (b *Broker) NewQueue() *pluginpkg.Queue {
	q := pluginpkg.NewQueue()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		q.Close()
		return q
	}
	b.queues = append(b.queues, q)
	return q
}

// Shutdown closes every queue the broker created. Safe to call repeatedly.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, q := range b.queues {
		q.Close()
	}
	b.queues = nil
}
