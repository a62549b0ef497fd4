// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"context"
	"iter"
	"sync"
	"time"
)

// DefaultRunDuration is how long Base.Run idles before returning.
const DefaultRunDuration = 100 * time.Millisecond

// Worker is the capability every plugin instance must provide.
type Worker interface {
	// Name returns the unique plugin name the worker was created with.
	Name() string

	// Send queues a message for the supervisor. An invalid status is
	// replaced by an error message instead of failing the call.
	Send(status Status, content string) error

	// Messages iterates over the worker's queue without blocking and stops
	// once it is exhausted.
	Messages() iter.Seq[Message]

	// Run is the process entrypoint. It returns when the work is done or
	// ctx is cancelled.
	Run(ctx context.Context) error
}

// Factory creates a worker bound to queue q. configDir is the directory
// holding per-plugin configuration files.
type Factory func(q *Queue, configDir, name string) (Worker, error)

// Base implements Worker and is meant to be embedded by plugins, which
// usually only override Run.
type Base struct {
	name   string
	queue  *Queue
	config *Config

	mu  sync.Mutex
	msg Message // scratch buffer, reset after every send
}

var _ Worker = (*Base)(nil)

// NewBase loads the plugin's configuration from configDir and announces the
// worker with a notify "Initialized" message. A missing or unreadable
// configuration is reported with a warn message and replaced by an empty one.
func NewBase(q *Queue, configDir, name string) *Base {
	b := &Base{
		name:  name,
		queue: q,
		msg:   Message{Issuer: name},
	}
	b.loadConfig(configDir)
	_ = b.Send(StatusNotify, "Initialized")
	return b
}

func (b *Base) loadConfig(dir string) {
	cfg, err := LoadConfig(dir, b.name)
	if err != nil {
		b.config = EmptyConfig()
		_ = b.Send(StatusWarning, "Unable to open config file: '"+ConfigPath(dir, b.name)+"'")
		return
	}
	b.config = cfg
}

// Name returns the plugin name.
func (b *Base) Name() string { return b.name }

// String returns the plugin name.
func (b *Base) String() string { return b.name }

// Queue returns the queue connecting the worker to the supervisor.
func (b *Base) Queue() *Queue { return b.queue }

// Config returns the parsed plugin configuration. Never nil.
func (b *Base) Config() *Config {
	if b.config == nil {
		return EmptyConfig()
	}
	return b.config
}

// Send queues a copy of the scratch message and clears the scratch buffer.
func (b *Base) Send(status Status, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.msg.SetStatus(status); err != nil {
		b.msg = Message{Status: StatusError, Content: err.Error(), Issuer: b.name}
	} else {
		b.msg.SetContent(content)
	}
	b.msg.ID = newID()

	out := b.msg
	b.msg.Reset()
	return b.queue.Put(out)
}

// Messages yields queued messages until the queue is empty.
func (b *Base) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			m, ok := b.queue.TryGet()
			if !ok || !yield(m) {
				return
			}
		}
	}
}

// Run idles for DefaultRunDuration.
func (b *Base) Run(ctx context.Context) error {
	t := time.NewTimer(DefaultRunDuration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
