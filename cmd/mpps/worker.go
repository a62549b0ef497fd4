// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package main

import (
	"github.com/spf13/cobra"

	pluginpkg "github.com/mpps/mpps/pkg/plugin"
	"github.com/mpps/mpps/pkg/pluginsdk"
)

// newWorkerCmd is the child-process entry point of built-in workers. The
// supervisor starts it through go-plugin; it is not meant for users.
func newWorkerCmd(deps *RunDeps) *cobra.Command {
	return &cobra.Command{
		Use:    "worker <name>",
		Short:  "Serve a built-in worker to the supervisor",
		Hidden: true,
		Args:   cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			d := deps.withDefaults()
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return d.Serve(d.Factories, name)
		},
	}
}

func serveWorker(factories map[string]pluginpkg.Factory, name string) error {
	return pluginsdk.Serve(&pluginsdk.ServeConfig{ //nolint:wrapcheck // sdk errors carry their oops code
		Factories: factories,
		Name:      name,
	})
}
