// Package commands implements the mongomgrctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mguindin/mongomgr/internal/config"
	"github.com/mguindin/mongomgr/internal/connmgr"
	"github.com/mguindin/mongomgr/internal/transport"
)

var (
	// mgr is the in-process connection manager, initialized in
	// PersistentPreRunE. There is no daemon to dial: mongomgrctl links
	// internal/connmgr directly, the way the teacher's gobfdctl linked a
	// ConnectRPC client to reach its daemon.
	mgr *connmgr.Manager

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// configPath is the YAML config file to load named seed sets from.
	configPath string

	// loadedConfig is the configuration loaded in PersistentPreRunE, used by
	// connectCmd to resolve a seed set by name.
	loadedConfig *config.Config
)

// newRootCmd builds a fresh root command tree. It is a constructor rather
// than a package-level var so the interactive shell (shell.go) can hand the
// console a new, unexecuted tree on every command dispatch -- cobra
// commands carry per-run parse state and are not safe to Execute twice.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mongomgrctl",
		Short: "CLI client for the mongomgr connection manager",
		Long:  "mongomgrctl resolves a seed set to a live connection using the same internal/connmgr core mongomgrd runs.",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			loadedConfig = cfg
			mgr = connmgr.NewManager(transport.New())
			mgr.SetIntervals(cfg.Pool.PingInterval, cfg.Pool.IsMasterInterval)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format: table, json")

	root.AddCommand(connectCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(shellCmd())

	return root
}

// loadCLIConfig loads configuration from path, or returns defaults when
// path is empty.
func loadCLIConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
