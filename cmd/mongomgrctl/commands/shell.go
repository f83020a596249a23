package commands

import (
	"fmt"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive mongomgrctl shell",
		Long:  "Launches a console REPL backed by reeflective/console, with completion and history for every mongomgrctl subcommand.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runShell()
		},
	}
}

// runShell starts the interactive console. The menu's command tree is
// rebuilt on every dispatch via newRootCmd, since a cobra.Command carries
// per-run parse state and is not safe to Execute more than once.
func runShell() error {
	app := console.New("mongomgrctl")

	menu := app.ActiveMenu()
	menu.SetCommands(func() *cobra.Command {
		root := newRootCmd()
		root.Use = ""
		return root
	})

	if err := app.Start(); err != nil {
		return fmt.Errorf("start shell: %w", err)
	}
	return nil
}
