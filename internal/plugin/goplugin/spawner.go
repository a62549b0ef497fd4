// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Package goplugin starts plugin workers as separate processes using
// HashiCorp's go-plugin system over gRPC.
package goplugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/mpps/mpps/internal/plugin"
	pluginpkg "github.com/mpps/mpps/pkg/plugin"
	"github.com/mpps/mpps/pkg/pluginsdk"
)

// Handshake retry defaults.
const (
	DefaultStartAttempts = 3
	DefaultStartBackoff  = 100 * time.Millisecond
)

// Compile-time interface check.
var _ plugin.Spawner = (*Spawner)(nil)

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client starts the process and returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
	// Exited reports whether the process has exited.
	Exited() bool
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client that runs cmd.
	NewClient(cmd *exec.Cmd) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct {
	// Logger receives go-plugin's own logs. Defaults to warnings on stderr.
	Logger hclog.Logger
	// WorkerLogger reports malformed worker messages. Defaults to slog.Default.
	WorkerLogger *slog.Logger
}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(cmd *exec.Cmd) PluginClient {
	logger := f.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "go-plugin",
			Level:  hclog.Warn,
			Output: os.Stderr,
		})
	}
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          NewPluginMap(f.WorkerLogger),
		Cmd:              cmd,
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		Logger:           logger,
	})
}

// Spawner starts each worker in its own process.
type Spawner struct {
	clientFactory ClientFactory
	attempts      uint64
	backoff       time.Duration
	logger        *slog.Logger
}

// Option configures a Spawner.
type Option func(*Spawner)

// WithClientFactory replaces the go-plugin client factory (for testing).
func WithClientFactory(f ClientFactory) Option {
	return func(s *Spawner) {
		if f != nil {
			s.clientFactory = f
		}
	}
}

// WithStartRetry sets how many times the handshake is attempted and the
// initial backoff between attempts.
func WithStartRetry(attempts uint64, backoff time.Duration) Option {
	return func(s *Spawner) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// WithLogger sets the spawner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Spawner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSpawner creates a process spawner.
func NewSpawner(opts ...Option) *Spawner {
	s := &Spawner{
		clientFactory: &DefaultClientFactory{},
		attempts:      DefaultStartAttempts,
		backoff:       DefaultStartBackoff,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts the module's executable, dispenses the worker and pumps its
// message stream into req.Queue.
func (s *Spawner) Spawn(ctx context.Context, req plugin.SpawnRequest) (plugin.Process, error) {
	if req.Module == nil || req.Module.Path == "" {
		return nil, oops.Code(plugin.CodeSpawnFailed).With("plugin", req.Name).
			Errorf("plugin %q has no executable", req.Name)
	}

	var (
		client PluginClient
		cmd    *exec.Cmd
		rpc    hashiplug.ClientProtocol
	)
	b := retry.WithMaxRetries(s.attempts-1, retry.NewExponential(s.backoff))
	err := retry.Do(ctx, b, func(_ context.Context) error {
		cmd = s.command(req)
		client = s.clientFactory.NewClient(cmd)
		c, err := client.Client()
		if err != nil {
			client.Kill()
			s.logger.Debug("plugin handshake failed", "plugin", req.Name, "error", err)
			return retry.RetryableError(err)
		}
		rpc = c
		return nil
	})
	if err != nil {
		return nil, oops.Code(plugin.CodeSpawnFailed).With("plugin", req.Name).
			Wrapf(err, "failed to connect to plugin %s", req.Name)
	}

	raw, err := rpc.Dispense(pluginsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, oops.Code(plugin.CodeSpawnFailed).With("plugin", req.Name).
			Wrapf(err, "failed to dispense plugin %s", req.Name)
	}

	wc, ok := raw.(pluginsdk.WorkerClient)
	if !ok {
		client.Kill()
		return nil, oops.Code(plugin.CodeInvalidWorker).With("plugin", req.Name).
			Wrapf(plugin.ErrInvalidWorker, "plugin %s does not implement WorkerClient", req.Name)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := wc.Run(streamCtx)
	if err != nil {
		cancel()
		client.Kill()
		return nil, oops.Code(plugin.CodeSpawnFailed).With("plugin", req.Name).
			Wrapf(err, "failed to start plugin %s", req.Name)
	}

	p := &process{
		name:   req.Name,
		client: client,
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go p.pump(streamCtx, stream, req.Queue)
	return p, nil
}

func (s *Spawner) command(req plugin.SpawnRequest) *exec.Cmd {
	cmd := exec.Command(req.Module.Path, req.Module.Args...) // #nosec G204 -- path comes from the catalog: the running binary or a validated manifest
	cmd.Env = append(os.Environ(),
		pluginsdk.EnvWorkerName+"="+req.Name,
		pluginsdk.EnvConfigDir+"="+req.ConfigDir,
	)
	return cmd
}

// process is a worker running in its own OS process.
type process struct {
	name   string
	client PluginClient
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	killOnce sync.Once
}

func (p *process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return !p.client.Exited()
	}
}

// Kill signals the process and returns immediately; go-plugin's own
// cleanup runs in the background.
func (p *process) Kill() {
	p.killOnce.Do(func() {
		p.cancel()
		if p.cmd != nil && p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.logger.Warn("failed to kill plugin process", "plugin", p.name, "error", err)
			}
		}
		go p.client.Kill()
	})
}

func (p *process) pump(ctx context.Context, stream pluginsdk.MessageStream, q *pluginpkg.Queue) {
	defer close(p.done)
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("plugin stream failed", "plugin", p.name, "error", err)
				if m, merr := pluginpkg.NewMessage(pluginpkg.StatusError, "worker stream failed: "+err.Error(), p.name); merr == nil {
					_ = q.Put(m)
				}
			}
			return
		}
		if msg.Issuer == "" {
			msg.Issuer = p.name
		}
		if err := q.Put(msg); err != nil {
			return
		}
	}
}
