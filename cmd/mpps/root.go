// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mpps/mpps/internal/config"
	"github.com/mpps/mpps/internal/logging"
)

// NewRootCmd creates the root command for the mpps CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *RunDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mpps",
		Short: "mpps - a multi-process plugin supervisor",
		Long: `mpps discovers plugins, runs each one as an isolated worker process and
relays the status messages the workers send, either by polling or through
per-plugin callbacks.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: XDG_CONFIG_HOME/mpps/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newListCmd(deps))
	cmd.AddCommand(newRunCmd(deps))
	cmd.AddCommand(newWorkerCmd(deps))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig reads the supervisor configuration for cmd and installs the
// default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // flag lookup errors are programming errors
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // config errors carry their oops code
	}
	logger := logging.Setup("mpps", version, cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}
