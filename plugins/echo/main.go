// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Command echo is an out-of-tree mpps worker. It repeats the lines
// configured in echo.conf as data messages and finishes:
//
//	lines:
//	  - hello
//	  - world
//
// Build it next to its manifest:
//
//	go build -o plugins/echo/echo ./plugins/echo
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mpps/mpps/pkg/plugin"
	"github.com/mpps/mpps/pkg/pluginsdk"
)

// Echo sends one data message per configured line.
type Echo struct {
	*plugin.Base
}

func newEcho(q *plugin.Queue, configDir, name string) (plugin.Worker, error) {
	return &Echo{Base: plugin.NewBase(q, configDir, name)}, nil
}

// Run reports the process id, echoes every line and finishes.
func (e *Echo) Run(ctx context.Context) error {
	if err := e.Send(plugin.StatusNotify, fmt.Sprintf("echo running as pid %d", os.Getpid())); err != nil {
		return err
	}
	lines := e.Config().Strings("lines")
	if len(lines) == 0 {
		lines = []string{e.Name()}
	}
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Send(plugin.StatusData, line); err != nil {
			return err
		}
	}
	return e.Send(plugin.StatusFinished, "")
}

func main() {
	err := pluginsdk.Serve(&pluginsdk.ServeConfig{
		Factories: map[string]plugin.Factory{"echo": newEcho},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
