// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package main

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/mpps/mpps/internal/config"
	"github.com/mpps/mpps/internal/plugin"
)

// buildCatalog registers the built-in workers and discovers binary plugins.
func buildCatalog(ctx context.Context, cfg *config.Config, deps *RunDeps) (*plugin.Catalog, []*plugin.DiscoveredPlugin, error) {
	catalog := plugin.NewCatalog(plugin.WithHostVersion(version))
	for _, name := range slices.Sorted(maps.Keys(deps.Factories)) {
		if err := catalog.Register(name, deps.Factories[name]); err != nil {
			return nil, nil, err //nolint:wrapcheck // catalog errors carry their oops code
		}
	}
	discovered, err := catalog.Discover(ctx, cfg.PluginsDir)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // catalog errors carry their oops code
	}
	return catalog, discovered, nil
}

func newManager(catalog *plugin.Catalog, cfg *config.Config, logger *slog.Logger, deps *RunDeps, opts ...plugin.ManagerOption) *plugin.Manager {
	base := []plugin.ManagerOption{
		plugin.WithConfigDir(cfg.ConfigDir),
		plugin.WithSpawner(deps.SpawnerFactory(cfg, logger)),
		plugin.WithPollInterval(cfg.PollInterval),
		plugin.WithCallbackBuffer(cfg.CallbackBuffer),
		plugin.WithLogger(logger),
	}
	return plugin.NewManager(catalog, append(base, opts...)...)
}
