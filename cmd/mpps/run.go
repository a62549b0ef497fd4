// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mpps/mpps/internal/config"
	"github.com/mpps/mpps/internal/observability"
	"github.com/mpps/mpps/internal/plugin"
	"github.com/mpps/mpps/pkg/errutil"
	pluginpkg "github.com/mpps/mpps/pkg/plugin"
)

// CodeNoPlugins is returned when the selection matches nothing.
const CodeNoPlugins = "NO_PLUGINS_SELECTED"

const shutdownTimeout = 5 * time.Second

type runConfig struct {
	callbacks bool
	showData  bool
	timeout   time.Duration
}

func newRunCmd(deps *RunDeps) *cobra.Command {
	cfg := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run [pattern...]",
		Short: "Load and run plugins until they finish",
		Long: `Load and run every plugin matching the glob patterns (all plugins when
none are given) and print their messages. A plugin is stopped once it
reports fin. Messages are polled by default; --callbacks delivers them
through per-plugin callbacks instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlugins(cmd, cfg, args, deps.withDefaults())
		},
	}

	cmd.Flags().BoolVar(&cfg.callbacks, "callbacks", false, "deliver messages through callbacks instead of polling")
	cmd.Flags().BoolVar(&cfg.showData, "show-data", false, "print data messages")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 0, "stop all plugins after this duration (0 = wait for fin)")

	return cmd
}

func runPlugins(cmd *cobra.Command, rc *runConfig, patterns []string, deps *RunDeps) error {
	sel, err := plugin.NewSelector(patterns...)
	if err != nil {
		return err //nolint:wrapcheck // selector errors carry their oops code
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	catalog, _, err := buildCatalog(ctx, cfg, deps)
	if err != nil {
		return err
	}
	names := sel.Filter(catalog.Names())
	if len(names) == 0 {
		_ = catalog.Close()
		return oops.Code(CodeNoPlugins).With("patterns", sel.Patterns()).
			Errorf("no plugin matches %s", strings.Join(sel.Patterns(), ", "))
	}

	var opts []plugin.ManagerOption
	ready := make(chan struct{})
	if cfg.MetricsAddr != "" {
		obs := deps.ObservabilityServerFactory(cfg.MetricsAddr, observability.ReadyAfter(ready))
		if _, err := obs.Start(); err != nil {
			_ = catalog.Close()
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		defer stopObservability(obs, logger)
		opts = append(opts, plugin.WithMetrics(obs.Metrics()))
	}

	m := newManager(catalog, cfg, logger, deps, opts...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.Close(closeCtx); err != nil {
			errutil.LogError(logger, "supervisor shutdown failed", err)
		}
	}()

	out := &printer{w: cmd.OutOrStdout(), showData: rc.showData}
	s := &session{m: m, out: out, logger: logger, callbacks: rc.callbacks}

	for _, name := range names {
		if err := s.start(ctx, name); err != nil {
			errutil.LogError(logger, "failed to start plugin", err)
		}
	}
	close(ready)

	if len(m.Running()) == 0 {
		return oops.Code(CodeNoPlugins).Errorf("no plugin could be started")
	}
	return s.wait(ctx, cfg)
}

func stopObservability(obs ObservabilityServer, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obs.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// session drives the workers of one run command.
type session struct {
	m         *plugin.Manager
	out       *printer
	logger    *slog.Logger
	callbacks bool
}

func (s *session) start(ctx context.Context, name string) error {
	if err := s.m.Load(ctx, name); err != nil {
		return err //nolint:wrapcheck // manager errors carry their oops code
	}
	if err := s.m.Run(ctx, name); err != nil {
		return err //nolint:wrapcheck // manager errors carry their oops code
	}
	if s.callbacks {
		return s.m.AddCallback(name, s.handle) //nolint:wrapcheck // manager errors carry their oops code
	}
	return nil
}

// handle prints msg and stops its worker on fin.
func (s *session) handle(msg pluginpkg.Message) {
	s.out.print(msg)
	if msg.Status == pluginpkg.StatusFinished {
		s.stop(context.Background(), msg.Issuer)
	}
}

func (s *session) stop(ctx context.Context, name string) {
	if err := s.m.Stop(ctx, name); err != nil && !errors.Is(err, plugin.ErrInvalidState) {
		errutil.Log(ctx, s.logger, slog.LevelWarn, "failed to stop plugin", err)
	}
}

// wait relays messages until every worker stopped or ctx ends.
func (s *session) wait(ctx context.Context, cfg *config.Config) error {
	idle := time.NewTimer(cfg.PollInterval)
	defer idle.Stop()

	for len(s.m.Running()) > 0 {
		if !s.callbacks {
			msg, err := s.m.NextAny()
			if err == nil {
				s.handle(msg)
				continue
			}
		}
		s.reap(ctx)

		idle.Reset(cfg.PollInterval)
		select {
		case <-ctx.Done():
			s.logger.Info("stopping plugins", "reason", context.Cause(ctx))
			return nil
		case <-idle.C:
		}
	}
	return nil
}

// reap stops workers whose process ended without reporting fin, after
// relaying what they left in their queue.
func (s *session) reap(ctx context.Context) {
	for _, name := range s.m.Running() {
		p, ok := s.m.Process(name)
		if !ok || p.Alive() {
			continue
		}
		_ = s.m.RemoveCallback(name)
		for {
			msg, err := s.m.NextMsg(name)
			if err != nil {
				break
			}
			s.out.print(msg)
		}
		s.logger.Debug("worker exited", "plugin", name)
		s.stop(ctx, name)
	}
}

// printer writes messages as "issuer::Label> line", one line per content
// line. Data messages are skipped unless showData is set.
type printer struct {
	mu       sync.Mutex
	w        io.Writer
	showData bool
}

func (p *printer) print(msg pluginpkg.Message) {
	if msg.Status == pluginpkg.StatusData && !p.showData {
		return
	}
	label, ok := msg.LongStatus()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !ok {
		fmt.Fprintf(p.w, "> Unknown Message Type %s from Plugin %s\n", msg.Status, msg.Issuer)
		return
	}
	prefix := msg.Issuer + "::" + label + "> "
	for _, line := range strings.Split(msg.Content, "\n") {
		fmt.Fprintln(p.w, prefix+line)
	}
}
