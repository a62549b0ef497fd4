// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned when putting into a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// Queue is the private FIFO between one worker and the supervisor.
//
// Queue is safe for concurrent use. The zero value is not usable; create
// queues with NewQueue or through a broker.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	ready  chan struct{}
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Put appends m to the queue. It never blocks.
func (q *Queue) Put(m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, m)

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryGet removes and returns the oldest message without blocking.
func (q *Queue) TryGet() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() (Message, bool) {
	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// release the backing array once drained
		q.items = nil
	}
	return m, true
}

// Get blocks until a message is available, the queue is closed and empty,
// or ctx is done.
func (q *Queue) Get(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		m, ok := q.popLocked()
		closed := q.closed
		q.mu.Unlock()

		if ok {
			return m, nil
		}
		if closed {
			return Message{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Drain discards every queued message and returns how many were dropped.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting messages. Queued messages remain
// readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
