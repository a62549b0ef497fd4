// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

//go:build integration

package plugin_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/mpps/mpps/internal/plugin"
	"github.com/mpps/mpps/internal/plugin/goplugin"
	pluginpkg "github.com/mpps/mpps/pkg/plugin"
	"github.com/mpps/mpps/plugins/example"
)

// collect polls name until fin arrives.
func collect(m *plugin.Manager, name string) []pluginpkg.Message {
	var msgs []pluginpkg.Message
	Eventually(func() bool {
		for {
			msg, err := m.NextMsg(name)
			if err != nil {
				return false
			}
			msgs = append(msgs, msg)
			if msg.Status == pluginpkg.StatusFinished {
				return true
			}
		}
	}).WithTimeout(20 * time.Second).WithPolling(10 * time.Millisecond).Should(BeTrue())
	return msgs
}

func contents(msgs []pluginpkg.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

var _ = Describe("Process isolation", func() {
	var (
		ctx     context.Context
		catalog *plugin.Catalog
		manager *plugin.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		catalog = plugin.NewCatalog(plugin.WithWorkerCommand(env.mpps, "worker"))
		Expect(catalog.Register(example.TickerName, example.NewTicker)).To(Succeed())
		_, err := catalog.Discover(ctx, env.pluginsDir)
		Expect(err).NotTo(HaveOccurred())

		manager = plugin.NewManager(catalog,
			plugin.WithConfigDir(env.configDir),
			plugin.WithSpawner(goplugin.NewSpawner()),
			plugin.WithPollInterval(5*time.Millisecond),
		)
	})

	AfterEach(func() {
		Expect(manager.Close(ctx)).To(Succeed())
	})

	Describe("binary plugins", func() {
		It("runs the echo executable in its own process", func() {
			Expect(manager.Load(ctx, "echo")).To(Succeed())
			Expect(manager.Run(ctx, "echo")).To(Succeed())

			proc, ok := manager.Process("echo")
			Expect(ok).To(BeTrue())
			Expect(proc.Pid()).NotTo(Equal(os.Getpid()))

			msgs := collect(manager, "echo")
			Expect(contents(msgs)).To(HaveLen(5))
			Expect(msgs[0].Content).To(Equal("Initialized"))
			Expect(msgs[1].Content).To(ContainSubstring("pid"))
			Expect(contents(msgs)[2:4]).To(Equal([]string{"hello", "world"}))
			for _, m := range msgs {
				Expect(m.Issuer).To(Equal("echo"))
			}

			Expect(manager.Stop(ctx, "echo")).To(Succeed())
			Expect(manager.Running()).To(BeEmpty())
		})
	})

	Describe("built-in plugins", func() {
		It("re-executes the supervisor binary as the worker", func() {
			Expect(manager.Load(ctx, example.TickerName)).To(Succeed())
			Expect(manager.Run(ctx, example.TickerName)).To(Succeed())

			var (
				mu      sync.Mutex
				got     []string
				stopErr = make(chan error, 1)
			)
			Expect(manager.AddCallback(example.TickerName, func(msg pluginpkg.Message) {
				mu.Lock()
				got = append(got, msg.Content)
				mu.Unlock()
				if msg.Status == pluginpkg.StatusFinished {
					stopErr <- manager.Stop(context.Background(), msg.Issuer)
				}
			})).To(Succeed())

			Eventually(stopErr).WithTimeout(20 * time.Second).Should(Receive(BeNil()))
			Expect(manager.Running()).To(BeEmpty())
			mu.Lock()
			defer mu.Unlock()
			Expect(got).To(Equal([]string{"Initialized", "1", "2", "3", ""}))
		})

		It("kills the worker process on Stop", func() {
			Expect(os.WriteFile(filepath.Join(env.configDir, "ticker.conf"), []byte("count: 100000\ninterval: 10ms\n"), 0o600)).To(Succeed())
			DeferCleanup(func() {
				_ = os.WriteFile(filepath.Join(env.configDir, "ticker.conf"), []byte("count: 3\ninterval: 10ms\n"), 0o600)
			})

			Expect(manager.Load(ctx, example.TickerName)).To(Succeed())
			Expect(manager.Run(ctx, example.TickerName)).To(Succeed())
			proc, ok := manager.Process(example.TickerName)
			Expect(ok).To(BeTrue())
			Eventually(func() error {
				_, err := manager.NextMsg(example.TickerName)
				return err
			}).WithTimeout(20 * time.Second).Should(Succeed())

			Expect(manager.Stop(ctx, example.TickerName)).To(Succeed())
			Eventually(proc.Alive).WithTimeout(10 * time.Second).Should(BeFalse())
		})
	})
})

var _ = Describe("mpps run", func() {
	It("prints the messages of a binary plugin", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		cmd := exec.CommandContext(ctx, env.mpps, "run",
			"--plugins-dir", env.pluginsDir,
			"--config-dir", env.configDir,
			"--show-data",
			"echo")
		cmd.Env = append(os.Environ(), "HOME="+env.dir)
		output, err := cmd.Output()
		Expect(err).NotTo(HaveOccurred(), "mpps run failed: %s", string(output))

		Expect(string(output)).To(ContainSubstring("echo::Notification> Initialized"))
		Expect(string(output)).To(ContainSubstring("echo::Data> hello"))
		Expect(string(output)).To(ContainSubstring("echo::Finished> "))
	})

	It("lists discovered and built-in plugins", func() {
		cmd := exec.Command(env.mpps, "list", "--plugins-dir", env.pluginsDir)
		cmd.Env = append(os.Environ(), "HOME="+env.dir)
		output, err := cmd.Output()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(output)).To(MatchRegexp(`echo\s+binary\s+1\.0\.0`))
		Expect(string(output)).To(MatchRegexp(`ticker\s+builtin`))
	})
})
