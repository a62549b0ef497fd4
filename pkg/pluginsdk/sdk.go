// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Package pluginsdk runs MPPS workers in their own process.
//
// The supervisor starts a worker process through HashiCorp go-plugin and
// passes the worker name and configuration directory in the environment.
// The process rebuilds the worker with its factory and streams every
// message it sends back to the supervisor over gRPC.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/mpps/mpps/pkg/plugin"
//		"github.com/mpps/mpps/pkg/pluginsdk"
//	)
//
//	type Echo struct{ *plugin.Base }
//
//	func (e *Echo) Run(ctx context.Context) error {
//		return e.Send(plugin.StatusFinished, "")
//	}
//
//	func main() {
//		if err := pluginsdk.Serve(&pluginsdk.ServeConfig{
//			Factories: map[string]plugin.Factory{
//				"echo": func(q *plugin.Queue, dir, name string) (plugin.Worker, error) {
//					return &Echo{Base: plugin.NewBase(q, dir, name)}, nil
//				},
//			},
//		}); err != nil {
//			panic(err)
//		}
//	}
package pluginsdk

import (
	"context"
	"errors"
	"os"
	"sync"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/mpps/mpps/pkg/plugin"
)

// Environment variables the supervisor sets for a worker process.
const (
	EnvWorkerName = "MPPS_WORKER_NAME"
	EnvConfigDir  = "MPPS_CONFIG_DIR"
)

// PluginName is the go-plugin name the worker is dispensed under.
const PluginName = "worker"

// HandshakeConfig is the go-plugin handshake configuration.
// Both the supervisor and workers must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MPPS_PLUGIN",
	MagicCookieValue: "mpps-v1",
}

// ServeConfig configures the worker process.
type ServeConfig struct {
	// Factories maps worker names to their factories.
	// Required; Serve will panic if empty.
	Factories map[string]plugin.Factory

	// Name overrides EnvWorkerName.
	Name string

	// ConfigDir overrides EnvConfigDir.
	ConfigDir string
}

// Serve builds the requested worker and serves it to the supervisor. It
// blocks until the supervisor terminates the process.
func Serve(config *ServeConfig) error {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if len(config.Factories) == 0 {
		panic("pluginsdk: config.Factories cannot be empty")
	}

	srv, err := NewWorkerServer(config)
	if err != nil {
		return err
	}

	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &grpcPlugin{server: srv},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
	return nil
}

// NewWorkerServer resolves the worker named by config (or the environment)
// and constructs it. Messages sent during construction are discarded: the
// supervisor built its own instance and already relayed them.
func NewWorkerServer(config *ServeConfig) (WorkerServer, error) {
	name := config.Name
	if name == "" {
		name = os.Getenv(EnvWorkerName)
	}
	dir := config.ConfigDir
	if dir == "" {
		dir = os.Getenv(EnvConfigDir)
	}
	if name == "" {
		return nil, oops.Code("WORKER_NAME_MISSING").Errorf("%s is not set", EnvWorkerName)
	}

	factory, ok := config.Factories[name]
	if !ok || factory == nil {
		return nil, oops.Code("WORKER_UNKNOWN").With("plugin", name).Errorf("no factory for worker %q", name)
	}

	q := plugin.NewQueue()
	w, err := factory(q, dir, name)
	if err != nil {
		return nil, oops.With("plugin", name).Wrapf(err, "create worker")
	}
	if w == nil {
		return nil, oops.Code("WORKER_INVALID").With("plugin", name).Errorf("factory for %q returned no worker", name)
	}
	q.Drain()

	return &workerServer{worker: w, queue: q}, nil
}

type workerServer struct {
	worker  plugin.Worker
	queue   *plugin.Queue
	started sync.Once
}

// Run implements WorkerServer.
func (s *workerServer) Run(_ *emptypb.Empty, stream MessageSender) error {
	first := false
	s.started.Do(func() { first = true })
	if !first {
		return status.Error(codes.FailedPrecondition, "worker already started")
	}

	ctx := stream.Context()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			_ = s.worker.Send(plugin.StatusError, "run failed: "+err.Error())
		}
		s.queue.Close()
	}()

	for {
		m, err := s.queue.Get(ctx)
		if errors.Is(err, plugin.ErrQueueClosed) {
			<-done
			return nil
		}
		if err != nil {
			return status.FromContextError(err).Err()
		}
		if err := stream.Send(m); err != nil {
			return err
		}
	}
}

// grpcPlugin implements go-plugin's Plugin interface for gRPC.
type grpcPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	server WorkerServer
}

// GRPCServer registers the worker server (called by the worker process).
func (p *grpcPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.server == nil {
		return errors.New("pluginsdk: worker server is nil")
	}
	RegisterWorkerServer(s, p.server)
	return nil
}

// GRPCClient is required by go-plugin's GRPCPlugin interface but is never
// called on the worker side. The supervisor has its own implementation.
func (p *grpcPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, _ *grpc.ClientConn) (interface{}, error) {
	return nil, errors.New("pluginsdk: GRPCClient not implemented on worker side")
}
