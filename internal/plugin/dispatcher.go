// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"sync"
	"time"

	"github.com/samber/oops"

	pluginpkg "github.com/mpps/mpps/pkg/plugin"
)

// Handler receives the messages of one worker, in send order, on a
// goroutine owned by the dispatcher. A panicking handler is not recovered.
type Handler func(msg pluginpkg.Message)

// subscription binds a handler to a worker. The dispatcher loop is the only
// sender on out, and only while holding callbacksMu.
type subscription struct {
	name      string
	handler   Handler
	out       chan pluginpkg.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) close() {
	s.closeOnce.Do(func() { close(s.out) })
}

// full reports whether the next send on out would block.
func (s *subscription) full() bool {
	return len(s.out) == cap(s.out)
}

func (m *Manager) deliver(sub *subscription) {
	defer m.retire(sub)
	for msg := range sub.out {
		sub.handler(msg)
		m.metrics.CallbackDelivered(sub.name)
	}
}

func (m *Manager) retire(sub *subscription) {
	m.callbacksMu.Lock()
	delete(m.delivering, sub)
	m.callbacksMu.Unlock()
	close(sub.done)
}

// awaitDeliveries waits for every deregistered callback to drain. Callbacks
// still registered, including ones added concurrently, are not waited for.
func (m *Manager) awaitDeliveries() {
	m.callbacksMu.Lock()
	pending := make([]chan struct{}, 0, len(m.delivering))
	for sub := range m.delivering {
		if m.callbacks[sub.name] != sub {
			pending = append(pending, sub.done)
		}
	}
	m.callbacksMu.Unlock()

	for _, done := range pending {
		<-done
	}
}

// AddCallback routes every message of a running plugin to handler. A
// previous callback for the plugin is replaced. The dispatcher starts on
// first use.
func (m *Manager) AddCallback(name string, handler Handler) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if handler == nil {
		return oops.Code(CodeInvalidHandler).With("plugin", name).
			Wrapf(ErrInvalidHandler, "callback for plugin %q is nil", name)
	}

	m.lockRunning()
	// Close stops workers under these locks after setting closed.
	if m.closed.Load() {
		m.unlockRunning()
		return ErrClosed
	}
	if _, ok := m.running[name]; !ok {
		m.unlockRunning()
		return m.notRunning(name)
	}
	if prev, ok := m.callbacks[name]; ok {
		prev.close()
	}
	sub := &subscription{
		name:    name,
		handler: handler,
		out:     make(chan pluginpkg.Message, m.callbackBuffer),
		done:    make(chan struct{}),
	}
	m.callbacks[name] = sub
	m.delivering[sub] = struct{}{}
	go m.deliver(sub)
	m.unlockRunning()

	m.startDispatcher()
	m.logger.Debug("registered callback", "plugin", name)
	return nil
}

// RemoveCallback deregisters the callback of name. Messages already handed
// to the callback are still delivered to it.
func (m *Manager) RemoveCallback(name string) error {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()

	sub, ok := m.callbacks[name]
	if !ok {
		return oops.Code(CodeNotFound).With("plugin", name).
			Wrapf(ErrNotFound, "no handler registered for plugin %q", name)
	}
	delete(m.callbacks, name)
	sub.close()
	m.logger.Debug("removed callback", "plugin", name)
	return nil
}

// ShutdownCallbacks stops the dispatcher, deregisters every callback and
// waits for pending deliveries. A later AddCallback starts a new
// dispatcher. It must not be called from a callback handler.
func (m *Manager) ShutdownCallbacks() {
	m.stopDispatcher()

	m.callbacksMu.Lock()
	for name, sub := range m.callbacks {
		delete(m.callbacks, name)
		sub.close()
	}
	m.callbacksMu.Unlock()

	m.awaitDeliveries()
}

func (m *Manager) startDispatcher() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.loopDone != nil || m.closed.Load() {
		return
	}
	m.loopStop = make(chan struct{})
	m.loopDone = make(chan struct{})
	go m.dispatchLoop(m.loopStop, m.loopDone)
}

func (m *Manager) stopDispatcher() {
	m.loopMu.Lock()
	stop, done := m.loopStop, m.loopDone
	m.loopStop, m.loopDone = nil, nil
	m.loopMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Manager) dispatchLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	idle := time.NewTimer(m.pollInterval)
	defer idle.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if m.dispatchOnce() > 0 {
			continue
		}

		idle.Reset(m.pollInterval)
		select {
		case <-stop:
			return
		case <-idle.C:
		}
	}
}

// dispatchOnce moves at most one message per callback from its worker
// queue to the callback and returns how many moved. A message stays queued
// while its callback's buffer is full.
func (m *Manager) dispatchOnce() int {
	m.lockRunning()
	defer m.unlockRunning()

	moved := 0
	for name, sub := range m.callbacks {
		rp, ok := m.running[name]
		if !ok {
			continue
		}
		if sub.full() {
			if rp.queue.Len() > 0 {
				m.metrics.CallbackBackpressure(name)
			}
			continue
		}
		msg, ok := rp.queue.TryGet()
		if !ok {
			continue
		}
		sub.out <- msg
		m.metrics.MessageRelayed(name, string(msg.Status))
		moved++
	}
	return moved
}
