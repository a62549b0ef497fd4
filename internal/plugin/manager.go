// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pluginpkg "github.com/mpps/mpps/pkg/plugin"
)

var tracer = otel.Tracer("mpps/plugin")

// Default tuning values.
const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultCallbackBuffer = 64
)

// State is a plugin's lifecycle state.
type State int

// Lifecycle states. Stopping a plugin returns it to StateLoaded.
const (
	StateUnknown State = iota
	StateDiscovered
	StateLoaded
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

type loadedPlugin struct {
	module *Module
	broker *Broker
}

type runningPlugin struct {
	process Process
	worker  pluginpkg.Worker
	queue   *pluginpkg.Queue
}

// Manager supervises plugin workers.
//
// Manager is safe for concurrent use. Its three registries each have their
// own lock; see locks.go for the acquisition order.
type Manager struct {
	catalog        *Catalog
	configDir      string
	spawner        Spawner
	pollInterval   time.Duration
	callbackBuffer int
	logger         *slog.Logger
	metrics        Metrics

	loadedMu sync.Mutex
	loaded   map[string]*loadedPlugin

	runningMu sync.Mutex
	running   map[string]*runningPlugin

	callbacksMu sync.Mutex
	callbacks   map[string]*subscription
	delivering  map[*subscription]struct{}

	loopMu   sync.Mutex
	loopStop chan struct{}
	loopDone chan struct{}

	closed atomic.Bool
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithConfigDir sets the directory holding per-plugin configuration files.
func WithConfigDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.configDir = dir
	}
}

// WithSpawner sets how workers are started. Defaults to InProcessSpawner,
// which runs workers on goroutines of the supervisor; pass a process
// spawner such as goplugin.Spawner to give each worker its own process.
func WithSpawner(s Spawner) ManagerOption {
	return func(m *Manager) {
		m.spawner = s
	}
}

// WithPollInterval sets how long the dispatcher idles when no callback
// worker has a message.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithCallbackBuffer sets how many messages may wait for each callback
// before the dispatcher leaves further messages in the worker queue.
func WithCallbackBuffer(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.callbackBuffer = n
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt Metrics) ManagerOption {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// NewManager creates a plugin manager over catalog. The catalog becomes
// read-only.
//
// Without WithSpawner, workers run in the supervisor's own process (see
// InProcessSpawner). Process isolation needs an explicit spawner; the mpps
// command installs goplugin.Spawner unless isolation is "inprocess".
// Panics if catalog is nil.
func NewManager(catalog *Catalog, opts ...ManagerOption) *Manager {
	if catalog == nil {
		panic("plugin: catalog cannot be nil")
	}
	catalog.freeze()

	m := &Manager{
		catalog:        catalog,
		spawner:        InProcessSpawner{},
		pollInterval:   DefaultPollInterval,
		callbackBuffer: DefaultCallbackBuffer,
		logger:         slog.Default(),
		metrics:        noopMetrics{},
		loaded:         make(map[string]*loadedPlugin),
		running:        make(map[string]*runningPlugin),
		callbacks:      make(map[string]*subscription),
		delivering:     make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load makes a discovered plugin ready to run. Loading a loaded plugin
// replaces it; loading a running plugin fails.
func (m *Manager) Load(ctx context.Context, name string) (err error) {
	ctx, span := m.startSpan(ctx, "plugin.Load", name)
	defer func() { m.endSpan(span, "load", err) }()

	if m.closed.Load() {
		return ErrClosed
	}
	loader, ok := m.catalog.Lookup(name)
	if !ok {
		return errNotFound(name)
	}

	m.loadedMu.Lock()
	defer m.loadedMu.Unlock()
	if m.closed.Load() {
		return ErrClosed
	}

	m.runningMu.Lock()
	_, running := m.running[name]
	m.runningMu.Unlock()
	if running {
		return errInvalidState(name, "is running")
	}

	module, err := loader.Load(ctx)
	if err != nil {
		return oops.Code("PLUGIN_LOAD_FAILED").With("plugin", name).Wrapf(err, "load plugin %q", name)
	}
	if module == nil || module.Factory == nil {
		return errInvalidWorker(name, "loader returned no factory")
	}

	if prev, ok := m.loaded[name]; ok {
		prev.broker.Shutdown()
		m.logger.InfoContext(ctx, "reloading plugin", "plugin", name)
	}
	m.loaded[name] = &loadedPlugin{module: module, broker: NewBroker()}

	m.logger.InfoContext(ctx, "loaded plugin", "plugin", name, "binary", module.Binary)
	return nil
}

// Run starts a loaded plugin's worker.
func (m *Manager) Run(ctx context.Context, name string) (err error) {
	ctx, span := m.startSpan(ctx, "plugin.Run", name)
	defer func() { m.endSpan(span, "run", err) }()

	if m.closed.Load() {
		return ErrClosed
	}

	m.loadedMu.Lock()
	defer m.loadedMu.Unlock()

	lp, ok := m.loaded[name]
	if !ok {
		if m.catalog.Has(name) {
			return errInvalidState(name, "is not loaded")
		}
		return errNotFound(name)
	}

	m.runningMu.Lock()
	defer m.runningMu.Unlock()

	// Close snapshots the running set after setting closed.
	if m.closed.Load() {
		return ErrClosed
	}
	if _, ok := m.running[name]; ok {
		return errInvalidState(name, "is already running")
	}

	q := lp.broker.NewQueue()
	w, err := lp.module.Factory(q, m.configDir, name)
	if err != nil {
		q.Close()
		return oops.Code(CodeInvalidWorker).With("plugin", name).Wrapf(errors.Join(ErrInvalidWorker, err), "create worker %q", name)
	}
	if w == nil {
		q.Close()
		return errInvalidWorker(name, "factory returned no worker")
	}
	if w.Name() != name {
		q.Close()
		return errInvalidWorker(name, "worker reports name "+w.Name())
	}

	proc, err := m.spawner.Spawn(ctx, SpawnRequest{
		Name:      name,
		ConfigDir: m.configDir,
		Module:    lp.module,
		Worker:    w,
		Queue:     q,
	})
	if err != nil {
		q.Close()
		return errSpawnFailed(name, err)
	}

	m.running[name] = &runningPlugin{process: proc, worker: w, queue: q}
	m.metrics.PluginStarted(name)
	m.logger.InfoContext(ctx, "started plugin", "plugin", name, "pid", proc.Pid())
	return nil
}

// Stop terminates a running plugin's worker. Any callback for the plugin is
// deregistered first. Stop does not wait for the worker to exit.
func (m *Manager) Stop(ctx context.Context, name string) (err error) {
	ctx, span := m.startSpan(ctx, "plugin.Stop", name)
	defer func() { m.endSpan(span, "stop", err) }()

	if m.closed.Load() {
		return ErrClosed
	}
	return m.stop(ctx, name)
}

func (m *Manager) stop(ctx context.Context, name string) error {
	m.lockRunning()
	rp, ok := m.running[name]
	if !ok {
		m.unlockRunning()
		return m.notRunning(name)
	}
	if sub, ok := m.callbacks[name]; ok {
		delete(m.callbacks, name)
		sub.close()
	}
	rp.process.Kill()
	rp.queue.Close()
	delete(m.running, name)
	m.unlockRunning()

	m.metrics.PluginStopped(name)
	m.logger.InfoContext(ctx, "stopped plugin", "plugin", name)
	return nil
}

// NextMsg returns the oldest message from a running plugin without
// blocking. It returns ErrEmpty when there is none or when the plugin has a
// callback.
func (m *Manager) NextMsg(name string) (pluginpkg.Message, error) {
	m.lockRunning()
	rp, ok := m.running[name]
	if !ok {
		m.unlockRunning()
		return pluginpkg.Message{}, m.notRunning(name)
	}
	_, hasCallback := m.callbacks[name]
	m.unlockRunning()

	if hasCallback {
		return pluginpkg.Message{}, ErrEmpty
	}
	msg, ok := rp.queue.TryGet()
	if !ok {
		return pluginpkg.Message{}, ErrEmpty
	}
	m.metrics.MessageRelayed(name, string(msg.Status))
	return msg, nil
}

// NextAny sweeps every running plugin without a callback, in name order,
// and returns the first message found. It never blocks.
func (m *Manager) NextAny() (pluginpkg.Message, error) {
	m.lockRunning()
	defer m.unlockRunning()

	names := make([]string, 0, len(m.running))
	for name := range m.running {
		if _, ok := m.callbacks[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	for _, name := range names {
		if msg, ok := m.running[name].queue.TryGet(); ok {
			m.metrics.MessageRelayed(name, string(msg.Status))
			return msg, nil
		}
	}
	return pluginpkg.Message{}, ErrEmpty
}

// State returns the lifecycle state of name. Registries are inspected one
// at a time, so the result may be stale by the time it is returned.
func (m *Manager) State(name string) State {
	m.runningMu.Lock()
	_, running := m.running[name]
	m.runningMu.Unlock()
	if running {
		return StateRunning
	}

	m.loadedMu.Lock()
	_, loaded := m.loaded[name]
	m.loadedMu.Unlock()
	if loaded {
		return StateLoaded
	}

	if m.catalog.Has(name) {
		return StateDiscovered
	}
	return StateUnknown
}

// notRunning builds the error for an operation that needs a running
// plugin. The caller must not hold runningMu or callbacksMu.
func (m *Manager) notRunning(name string) error {
	switch m.State(name) {
	case StateRunning:
		return errInvalidState(name, "changed state concurrently")
	case StateLoaded:
		return errInvalidState(name, "is not running")
	case StateDiscovered:
		return errInvalidState(name, "is not loaded")
	default:
		return errNotFound(name)
	}
}

// Plugins returns every plugin name in the catalog.
func (m *Manager) Plugins() []string {
	return m.catalog.Names()
}

// Loaded returns the names of loaded plugins.
func (m *Manager) Loaded() []string {
	m.loadedMu.Lock()
	defer m.loadedMu.Unlock()
	return sortedKeys(m.loaded)
}

// Running returns the names of running plugins.
func (m *Manager) Running() []string {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	return sortedKeys(m.running)
}

// Callbacks returns the names of plugins with a registered callback.
func (m *Manager) Callbacks() []string {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	return sortedKeys(m.callbacks)
}

// Workers returns the running worker instances ordered by name.
func (m *Manager) Workers() []pluginpkg.Worker {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()

	out := make([]pluginpkg.Worker, 0, len(m.running))
	for _, name := range sortedKeys(m.running) {
		out = append(out, m.running[name].worker)
	}
	return out
}

// Process returns the process handle of a running plugin.
func (m *Manager) Process(name string) (Process, bool) {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	rp, ok := m.running[name]
	if !ok {
		return nil, false
	}
	return rp.process, true
}

// Close tears the manager down: it stops every worker, deregisters every
// callback, closes the catalog's loaders, waits for the dispatcher and
// finally shuts down every broker. Close is idempotent. It must not be
// called from a callback handler.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, name := range m.Running() {
		if err := m.stop(ctx, name); err != nil {
			m.logger.WarnContext(ctx, "failed to stop plugin during close", "plugin", name, "error", err)
		}
	}

	m.callbacksMu.Lock()
	for name, sub := range m.callbacks {
		delete(m.callbacks, name)
		sub.close()
	}
	m.callbacksMu.Unlock()

	err := m.catalog.Close()

	m.stopDispatcher()
	m.awaitDeliveries()

	m.lockAll()
	for name, lp := range m.loaded {
		lp.broker.Shutdown()
		delete(m.loaded, name)
	}
	m.unlockAll()

	if err != nil {
		return oops.Code("PLUGIN_CLOSE_FAILED").Wrapf(err, "close catalog")
	}
	return nil
}

func (m *Manager) startSpan(ctx context.Context, op, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(attribute.String("plugin.name", name)))
}

func (m *Manager) endSpan(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	m.metrics.Operation(op, result(err))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
