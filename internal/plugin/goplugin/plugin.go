// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package goplugin

import (
	"context"
	"errors"
	"log/slog"

	goplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/mpps/mpps/pkg/pluginsdk"
)

// HandshakeConfig is imported from pluginsdk to ensure host and plugins
// use identical configuration. Do not define locally to prevent drift.
var HandshakeConfig = pluginsdk.HandshakeConfig

// NewPluginMap returns the plugins the supervisor can dispense. logger
// receives worker protocol violations; nil means slog.Default.
func NewPluginMap(logger *slog.Logger) map[string]goplugin.Plugin {
	return map[string]goplugin.Plugin{
		pluginsdk.PluginName: &GRPCPlugin{Logger: logger},
	}
}

// GRPCPlugin implements go-plugin's Plugin interface for gRPC on the
// supervisor side.
type GRPCPlugin struct {
	goplugin.NetRPCUnsupportedPlugin
	Logger *slog.Logger
}

// GRPCServer is never called on the supervisor side; worker processes
// serve through pluginsdk.Serve.
func (p *GRPCPlugin) GRPCServer(_ *goplugin.GRPCBroker, _ *grpc.Server) error {
	return errors.New("goplugin: GRPCServer not implemented on supervisor side")
}

// GRPCClient returns a worker client (called by the supervisor).
func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *goplugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return pluginsdk.NewWorkerClient(c, pluginsdk.WithClientLogger(p.Logger)), nil
}
