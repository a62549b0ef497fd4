// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-hclog"

	"github.com/mpps/mpps/internal/config"
	"github.com/mpps/mpps/internal/observability"
	"github.com/mpps/mpps/internal/plugin"
	"github.com/mpps/mpps/internal/plugin/goplugin"
	pluginpkg "github.com/mpps/mpps/pkg/plugin"
	"github.com/mpps/mpps/plugins/example"
)

// RunDeps contains injectable dependencies for the list, run and worker
// commands. All fields with nil values will use their default implementations.
type RunDeps struct {
	// Factories are the workers compiled into the binary.
	// Default: example.Factories
	Factories map[string]pluginpkg.Factory

	// SpawnerFactory chooses how workers are started.
	// Default: goplugin.NewSpawner for process isolation, plugin.InProcessSpawner otherwise
	SpawnerFactory func(cfg *config.Config, logger *slog.Logger) plugin.Spawner

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Serve runs the worker side of a built-in plugin.
	// Default: pluginsdk.Serve
	Serve func(factories map[string]pluginpkg.Factory, name string) error
}

// ObservabilityServer is the subset of observability.Server used by run.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *RunDeps) withDefaults() *RunDeps {
	out := RunDeps{}
	if d != nil {
		out = *d
	}
	if out.Factories == nil {
		out.Factories = example.Factories()
	}
	if out.SpawnerFactory == nil {
		out.SpawnerFactory = defaultSpawner
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.Serve == nil {
		out.Serve = serveWorker
	}
	return &out
}

func defaultSpawner(cfg *config.Config, logger *slog.Logger) plugin.Spawner {
	if cfg.Isolation == config.IsolationInProcess {
		return plugin.InProcessSpawner{}
	}
	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	hlog := hclog.New(&hclog.LoggerOptions{
		Name:   "go-plugin",
		Level:  level,
		Output: slog.NewLogLogger(logger.Handler(), slog.LevelDebug).Writer(),
	})
	return goplugin.NewSpawner(
		goplugin.WithLogger(logger),
		goplugin.WithClientFactory(&goplugin.DefaultClientFactory{Logger: hlog, WorkerLogger: logger}),
	)
}
