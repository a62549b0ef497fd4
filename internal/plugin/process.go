// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"context"
	"errors"
	"os"

	"github.com/samber/oops"

	pluginpkg "github.com/mpps/mpps/pkg/plugin"
)

// SpawnRequest describes a worker to start.
type SpawnRequest struct {
	Name      string
	ConfigDir string
	Module    *Module
	// Worker is the supervisor-side instance built by the module factory.
	Worker pluginpkg.Worker
	// Queue receives every message the worker sends.
	Queue *pluginpkg.Queue
}

// Process is a handle on a running worker.
type Process interface {
	Pid() int
	// Alive reports whether the worker is still executing.
	Alive() bool
	// Kill terminates the worker without waiting for it to exit.
	Kill()
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (Process, error)
}

// InProcessSpawner runs each worker's Run on its own goroutine inside the
// supervisor. Binary plugins are rejected.
type InProcessSpawner struct{}

var _ Spawner = InProcessSpawner{}

// Spawn implements Spawner.
func (InProcessSpawner) Spawn(_ context.Context, req SpawnRequest) (Process, error) {
	if req.Module != nil && req.Module.Binary {
		return nil, oops.Code(CodeSpawnFailed).With("plugin", req.Name).
			Errorf("binary plugin %q requires process isolation", req.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &goroutineProcess{cancel: cancel, done: make(chan struct{})}
	w := req.Worker
	go func() {
		defer close(p.done)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			_ = w.Send(pluginpkg.StatusError, "run failed: "+err.Error())
		}
	}()
	return p, nil
}

type goroutineProcess struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *goroutineProcess) Pid() int { return os.Getpid() }

func (p *goroutineProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *goroutineProcess) Kill() { p.cancel() }
