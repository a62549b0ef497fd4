// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/samber/oops"

	pluginpkg "github.com/mpps/mpps/pkg/plugin"
)

// Module is what loading a plugin yields: the factory that builds its
// worker and the command that hosts that worker in a separate process.
type Module struct {
	Name    string
	Factory pluginpkg.Factory
	// Path and Args start the worker process.
	Path string
	Args []string
	// Binary is set for out-of-tree workers, whose Run only exists in the
	// external executable.
	Binary bool
}

// Loader resolves one plugin into a Module.
type Loader interface {
	Name() string
	Load(ctx context.Context) (*Module, error)
	Close() error
}

// DiscoveredPlugin contains a manifest and its directory.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// Catalog is the registry of plugins the supervisor may load. It is
// populated at startup and becomes read-only once a Manager owns it.
type Catalog struct {
	mu          sync.RWMutex
	loaders     map[string]Loader
	frozen      bool
	workerCmd   string
	workerArgs  []string
	hostVersion string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithWorkerCommand sets the command that hosts built-in workers. The
// worker name is appended to args. Defaults to the running executable
// with the "worker" subcommand.
func WithWorkerCommand(path string, args ...string) CatalogOption {
	return func(c *Catalog) {
		c.workerCmd = path
		c.workerArgs = args
	}
}

// WithHostVersion sets the supervisor version checked against manifest
// engine constraints during discovery.
func WithHostVersion(version string) CatalogOption {
	return func(c *Catalog) {
		c.hostVersion = version
	}
}

// NewCatalog creates an empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		loaders:    make(map[string]Loader),
		workerArgs: []string{"worker"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a built-in worker.
func (c *Catalog) Register(name string, factory pluginpkg.Factory) error {
	if factory == nil {
		return oops.Code(CodeInvalidWorker).With("plugin", name).Errorf("factory for %q is nil", name)
	}
	return c.Add(&builtinLoader{name: name, factory: factory, catalog: c})
}

// Add registers a loader under its name.
func (c *Catalog) Add(l Loader) error {
	name := l.Name()
	if !ValidName(name) {
		return oops.Code("PLUGIN_INVALID_NAME").With("plugin", name).Errorf("invalid plugin name %q", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return oops.Code(CodeInvalidState).With("plugin", name).Errorf("catalog is read-only")
	}
	if _, ok := c.loaders[name]; ok {
		return oops.Code("PLUGIN_DUPLICATE").With("plugin", name).Errorf("plugin %q is already registered", name)
	}
	c.loaders[name] = l
	return nil
}

// Discover finds all valid plugins in dir and registers them.
// Invalid plugins are logged and skipped.
func (c *Catalog) Discover(_ context.Context, dir string) ([]*DiscoveredPlugin, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No plugins directory
		}
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var plugins []*DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(pluginDir, ManifestFile)

		data, err := os.ReadFile(manifestPath) //nolint:gosec // manifestPath is constructed from ReadDir entries
		if err != nil {
			slog.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			slog.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		if c.hostVersion != "" && !manifest.SupportsEngine(c.hostVersion) {
			slog.Warn("skipping plugin built for another engine",
				"plugin", manifest.Name,
				"engine", manifest.Engine,
				"version", c.hostVersion)
			continue
		}

		dp := &DiscoveredPlugin{Manifest: manifest, Dir: pluginDir}
		if err := c.Add(&binaryLoader{plugin: dp}); err != nil {
			slog.Warn("skipping plugin",
				"plugin", manifest.Name,
				"error", err)
			continue
		}
		plugins = append(plugins, dp)
	}

	return plugins, nil
}

// Lookup returns the loader registered under name.
func (c *Catalog) Lookup(name string) (Loader, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.loaders[name]
	return l, ok
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Names returns every registered name, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.loaders))
	for name := range c.loaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close releases every loader handle.
func (c *Catalog) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for _, l := range c.loaders {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

func (c *Catalog) workerCommand() (string, []string, error) {
	if c.workerCmd != "" {
		return c.workerCmd, slices.Clone(c.workerArgs), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("resolve executable: %w", err)
	}
	return exe, slices.Clone(c.workerArgs), nil
}

// builtinLoader serves a worker compiled into this binary.
type builtinLoader struct {
	name    string
	factory pluginpkg.Factory
	catalog *Catalog
}

func (l *builtinLoader) Name() string { return l.name }

func (l *builtinLoader) Load(_ context.Context) (*Module, error) {
	path, args, err := l.catalog.workerCommand()
	if err != nil {
		return nil, err
	}
	return &Module{
		Name:    l.name,
		Factory: l.factory,
		Path:    path,
		Args:    append(args, l.name),
	}, nil
}

func (l *builtinLoader) Close() error { return nil }

// binaryLoader serves a worker shipped as its own executable.
type binaryLoader struct {
	plugin *DiscoveredPlugin
}

func (l *binaryLoader) Name() string { return l.plugin.Manifest.Name }

func (l *binaryLoader) Load(_ context.Context) (*Module, error) {
	m := l.plugin.Manifest
	execPath := filepath.Join(l.plugin.Dir, m.BinaryPlugin.Executable)
	if _, err := os.Stat(execPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plugin executable not found: %s: %w", execPath, err)
		}
		return nil, fmt.Errorf("cannot access plugin executable %s: %w", execPath, err)
	}
	return &Module{
		Name:    m.Name,
		Factory: remoteFactory,
		Path:    execPath,
		Args:    slices.Clone(m.BinaryPlugin.Args),
		Binary:  true,
	}, nil
}

func (l *binaryLoader) Close() error { return nil }

// remoteWorker is the supervisor-side stand-in for an out-of-tree worker:
// it reports initialization and configuration like any worker, while the
// real Run executes in the plugin executable.
type remoteWorker struct {
	*pluginpkg.Base
}

func remoteFactory(q *pluginpkg.Queue, configDir, name string) (pluginpkg.Worker, error) {
	return &remoteWorker{Base: pluginpkg.NewBase(q, configDir, name)}, nil
}
