// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mpps/mpps/internal/plugin"
)

// PluginInfo describes one catalog entry.
type PluginInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Dir         string `json:"dir,omitempty"`
}

// Plugin kinds.
const (
	kindBuiltin = "builtin"
	kindBinary  = "binary"
)

type listConfig struct {
	jsonOutput bool
}

func newListCmd(deps *RunDeps) *cobra.Command {
	cfg := &listConfig{}

	cmd := &cobra.Command{
		Use:   "list [pattern...]",
		Short: "List available plugins",
		Long: `List the built-in plugins and the binary plugins discovered in the
plugins directory. Patterns are globs matched against plugin names.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, cfg, args, deps.withDefaults())
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runList(cmd *cobra.Command, cfg *listConfig, patterns []string, deps *RunDeps) error {
	sel, err := plugin.NewSelector(patterns...)
	if err != nil {
		return err //nolint:wrapcheck // selector errors carry their oops code
	}
	conf, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	catalog, discovered, err := buildCatalog(cmd.Context(), conf, deps)
	if err != nil {
		return err
	}
	defer func() { _ = catalog.Close() }()

	infos := describe(catalog, discovered, sel)

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}
	cmd.Print(formatPluginTable(infos))
	return nil
}

func describe(catalog *plugin.Catalog, discovered []*plugin.DiscoveredPlugin, sel *plugin.Selector) []PluginInfo {
	binaries := make(map[string]*plugin.DiscoveredPlugin, len(discovered))
	for _, dp := range discovered {
		binaries[dp.Manifest.Name] = dp
	}

	infos := make([]PluginInfo, 0, len(catalog.Names()))
	for _, name := range sel.Filter(catalog.Names()) {
		info := PluginInfo{Name: name, Kind: kindBuiltin}
		if dp, ok := binaries[name]; ok {
			info.Kind = kindBinary
			info.Version = dp.Manifest.Version
			info.Description = dp.Manifest.Description
			info.Dir = dp.Dir
		}
		infos = append(infos, info)
	}
	return infos
}

func formatPluginTable(infos []PluginInfo) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tVERSION\tDESCRIPTION")
	for _, info := range infos {
		v := info.Version
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Kind, v, info.Description)
	}
	_ = w.Flush()
	return buf.String()
}
